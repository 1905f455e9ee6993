package llmclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"testing"

	"github.com/andybalholm/brotli"
)

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func brotliCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	br := brotli.NewWriter(&buf)
	if _, err := br.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := br.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func deflateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	fl, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fl.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := fl.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecompressBody(t *testing.T) {
	payload := []byte(`{"choices":[{"message":{"role":"assistant","content":"Hi"}}]}`)

	tests := []struct {
		name     string
		body     []byte
		encoding string
		want     []byte
		wantOK   bool
	}{
		{"gzip", nil, "gzip", payload, true},
		{"gzip uppercase", nil, "GZIP", payload, true},
		{"brotli", nil, "br", payload, true},
		{"deflate", nil, "deflate", payload, true},
		{"identity returns original", payload, "identity", payload, false},
		{"empty encoding returns original", payload, "", payload, false},
		{"unknown encoding returns original", payload, "zstd", payload, false},
		{"corrupt gzip returns original", []byte("not gzip"), "gzip", []byte("not gzip"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil {
				switch tt.encoding {
				case "gzip", "GZIP":
					body = gzipCompress(t, payload)
				case "br":
					body = brotliCompress(t, payload)
				case "deflate":
					body = deflateCompress(t, payload)
				}
			}

			got, ok := decompressBody(body, tt.encoding)
			if ok != tt.wantOK {
				t.Errorf("decompressBody() ok = %v, want %v", ok, tt.wantOK)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decompressBody() = %q, want %q", got, tt.want)
			}
		})
	}
}
