package qa

import (
	"context"
	"sync"

	"github.com/compozy/docqa/engine/knowledge/retriever"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
)

type generatorCall struct {
	op  string
	req *llmadapter.LLMRequest
}

// scriptedGenerator answers each operation with a fixed reply or error.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []generatorCall
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{replies: map[string]string{}, errs: map[string]error{}}
}

func (g *scriptedGenerator) Generate(
	_ context.Context,
	op string,
	req *llmadapter.LLMRequest,
) (*llmadapter.LLMResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generatorCall{op: op, req: req})
	if err := g.errs[op]; err != nil {
		return nil, err
	}
	return &llmadapter.LLMResponse{Content: g.replies[op]}, nil
}

func (g *scriptedGenerator) callsFor(op string) []generatorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]generatorCall, 0)
	for _, call := range g.calls {
		if call.op == op {
			out = append(out, call)
		}
	}
	return out
}

type stubRetriever struct {
	mu      sync.Mutex
	results []retriever.Result
	err     error
	queries []string
	ks      []int
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, k int) ([]retriever.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	r.ks = append(r.ks, k)
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

func parisResults() []retriever.Result {
	return []retriever.Result{
		{ID: "p-0", Text: "Paris is the capital of France.", Score: 0.9, Metadata: map[string]any{"file_name": "france.docx"}},
		{ID: "p-1", Text: "Paris has about two million residents.", Score: 0.7, Metadata: map[string]any{"file_name": "paris.docx"}},
	}
}
