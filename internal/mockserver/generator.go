package mockserver

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// EmbeddingDims is the dimension of vectors returned by /v1/embeddings.
// It matches the default expected by the conversation history store.
const EmbeddingDims = 384

// cannedReplies maps exact prompts to fixed replies, independent of the
// seed. Tests rely on these staying stable.
var cannedReplies = map[string]string{
	"Hello": "Hi there!",
	"Ping":  "Pong",
}

// openers vary generated replies a little so different prompts do not all
// read the same.
var openers = []string{
	"Sure.",
	"Of course.",
	"Here is what I have.",
	"Good question.",
}

// Generator produces deterministic chat replies and embedding vectors.
// All output is a pure function of the seed and the input, so repeated
// runs against the same server produce identical responses.
type Generator struct {
	seed int64
}

// NewGenerator creates a generator for the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed}
}

// Reply returns the assistant reply for a prompt. Canned prompts get their
// fixed reply; everything else gets a templated echo whose opener is
// chosen by hashing the seed and prompt.
func (g *Generator) Reply(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if reply, ok := cannedReplies[prompt]; ok {
		return reply
	}
	if prompt == "" {
		return "How can I help?"
	}
	opener := openers[g.hash(prompt)%uint64(len(openers))]
	return fmt.Sprintf("%s You said: %s", opener, prompt)
}

// ResponseID derives a stable response ID for a prompt, e.g.
// "chatcmpl-9a3f...".
func (g *Generator) ResponseID(prefix, prompt string) string {
	return fmt.Sprintf("%s-%016x", prefix, g.hash(prompt))
}

// Embedding returns a unit-length pseudo-random vector for the input.
// The PRNG is seeded from the generator seed and the input hash, so the
// same input always maps to the same vector.
func (g *Generator) Embedding(input string) []float32 {
	r := rand.New(rand.NewPCG(uint64(g.seed), xxhash.Sum64String(input)))
	vec := make([]float32, EmbeddingDims)
	var norm float64
	for i := range vec {
		v := r.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (g *Generator) hash(s string) uint64 {
	h := xxhash.New()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(g.seed))
	_, _ = h.Write(seed[:])
	_, _ = h.WriteString(s)
	return h.Sum64()
}

// CountTokens approximates a token count by splitting on whitespace.
// Real tokenizers differ, but whitespace counting is deterministic and
// close enough for usage accounting in tests.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// TruncateTokens cuts text down to at most max whitespace tokens and
// reports the matching finish reason: "length" when truncated, "stop"
// otherwise. A nil or non-positive max leaves the text alone.
func TruncateTokens(text string, max *int) (string, string) {
	if max == nil || *max <= 0 {
		return text, "stop"
	}
	fields := strings.Fields(text)
	if len(fields) <= *max {
		return text, "stop"
	}
	return strings.Join(fields[:*max], " "), "length"
}
