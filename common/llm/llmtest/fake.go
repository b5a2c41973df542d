// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
)

// Responder returns the raw JSON answer for one call, or false for a failed call.
type Responder func(messages []llm.Message) (string, bool)

// Fake answers each schema with its Responder and counts calls per schema.
// Schemas without a responder fail.
type Fake struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      map[string]int
	last       map[string][]llm.Message
}

func New() *Fake {
	return &Fake{
		responders: map[string]Responder{},
		calls:      map[string]int{},
		last:       map[string][]llm.Message{},
	}
}

// On registers the responder of schema.
func (f *Fake) On(schema string, r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[schema] = r
	return f
}

// Always answers schema with the same JSON.
func (f *Fake) Always(schema, answer string) *Fake {
	return f.On(schema, func([]llm.Message) (string, bool) { return answer, true })
}

func (f *Fake) Calls(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

// LastMessages returns the messages of the latest call for schema.
func (f *Fake) LastMessages(schema string) []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[schema]
}

func (f *Fake) Call(_ context.Context, messages []llm.Message, out any, opts llm.CallOptions) bool {
	f.mu.Lock()
	f.calls[opts.Schema]++
	f.last[opts.Schema] = messages
	r := f.responders[opts.Schema]
	f.mu.Unlock()

	if r == nil {
		return false
	}
	answer, ok := r(messages)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(answer), out); err != nil {
		return false
	}
	if v, ok := out.(llm.Validator); ok {
		return v.Validate() == nil
	}
	return true
}
