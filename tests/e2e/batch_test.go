//go:build e2e

package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsahiduek/ai-on-eks/internal/batch"
)

func TestBatchAgainstLiveServer(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.EnsureRouting(t.Context()))

	in := strings.Join([]string{
		`{"id":"greet","prompt":"Hello"}`,
		`{"id":"broken","prompt":"error:404"}`,
		`{"id":"ping","prompt":"Ping"}`,
	}, "\n")

	runner := &batch.Runner{
		Router:       a.Router,
		Usage:        a.Usage.Logger,
		Concurrency:  2,
		DefaultModel: testModel,
	}
	var out bytes.Buffer
	summary, err := runner.Run(t.Context(), strings.NewReader(in), &out)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Items)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)

	var results []batch.Result
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var res batch.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		results = append(results, res)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, results, 3)

	// Results come back in input order regardless of completion order.
	require.Equal(t, "greet", results[0].ID)
	require.Equal(t, "Hi there!", results[0].Content)
	require.Equal(t, "broken", results[1].ID)
	require.NotEmpty(t, results[1].Error)
	require.Empty(t, results[1].Content)
	require.Equal(t, "ping", results[2].ID)
	require.Equal(t, "Pong", results[2].Content)
}
