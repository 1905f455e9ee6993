package llmclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on non-streaming requests
const acceptEncoding = "gzip, br"

// maxDecompressedBodySize bounds decompressed response bodies (16 MiB)
const maxDecompressedBodySize = 16 * 1024 * 1024

// decompressBody decompresses a response body according to its
// Content-Encoding. Returns the original body and false when the encoding
// is unknown or the payload is corrupt.
func decompressBody(body []byte, encoding string) ([]byte, bool) {
	var reader io.Reader

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, false
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body, false
		}
		defer func() {
			_ = gz.Close()
		}()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer func() {
			_ = fl.Close()
		}()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return body, false
	}

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxDecompressedBodySize))
	if err != nil {
		return body, false
	}
	return decompressed, true
}
