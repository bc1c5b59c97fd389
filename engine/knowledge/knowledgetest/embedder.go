// Package knowledgetest provides deterministic doubles for knowledge tests.
package knowledgetest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// ErrInjected is returned by HashEmbedder when a text contains FailOn.
var ErrInjected = errors.New("injected embedding failure")

// HashEmbedder embeds text as a bag of hashed lower-case words, so texts that
// share words score higher under cosine similarity.
type HashEmbedder struct {
	Dim    int
	FailOn string
	calls  atomic.Int64
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// Calls returns how many embedding requests were served.
func (e *HashEmbedder) Calls() int {
	return int(e.calls.Load())
}

func (e *HashEmbedder) Dimension() int {
	return e.Dim
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrInjected
	}
	vec := make([]float32, e.Dim)
	for _, word := range Words(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))           //nolint:errcheck // hash writes never fail
		vec[int(h.Sum32()%uint32(e.Dim))] += 1 // #nosec G115 -- Dim is small and positive
	}
	return vec, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "of": {}, "a": {}, "an": {}, "what": {}, "and": {}, "in": {}, "it": {},
}

// Words lower-cases text and returns its content words.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			out = append(out, f)
		}
	}
	return out
}
