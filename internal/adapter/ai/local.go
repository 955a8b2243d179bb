package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider is an offline port.AIProvider: a feature-hashing bag-of-words
// embedder and an extractive chat completer. Output is deterministic.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local provider producing vectors of dimension dim.
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = 256
	}
	return &LocalProvider{dimension: dim}
}

func (l *LocalProvider) ModelName() string { return fmt.Sprintf("local-hash-%d", l.dimension) }

// Dimension returns the embedding size.
func (l *LocalProvider) Dimension() int { return l.dimension }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Embed hashes each token into a bucket with a signed weight and L2-normalises
// the result. Text without tokens embeds to the zero vector.
func (l *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, l.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return v, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// NoContextAnswer is returned when no context chunk was supplied.
const NoContextAnswer = "I could not find relevant information in the indexed documents."

// Chat answers with the context chunk sharing the most tokens with the question.
func (l *LocalProvider) Chat(_ context.Context, _ string, userPrompt string, contextChunks []string) (string, error) {
	if len(contextChunks) == 0 {
		return NoContextAnswer, nil
	}

	question := make(map[string]struct{})
	for _, tok := range tokenize(userPrompt) {
		question[tok] = struct{}{}
	}

	best, bestScore := 0, -1
	for i, chunk := range contextChunks {
		score := 0
		for _, tok := range tokenize(chunk) {
			if _, ok := question[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return "Based on the retrieved context: " + strings.TrimSpace(contextChunks[best]), nil
}
