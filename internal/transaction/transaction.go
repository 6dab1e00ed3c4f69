// Package transaction implements the per-request trace accumulator. A
// Transaction collects structured facts about every pipeline stage for
// observability; the pipeline never reads it back to make decisions.
package transaction

import (
	"sync"

	"github.com/google/uuid"
)

// Facts is a loosely typed bag of recorded values.
type Facts = map[string]any

// Transaction accumulates the structured trace of a single /infer request.
// It is owned by the request's goroutine; Record is safe to call from the
// sensitivity/paraphrase fan-out, which runs two writers briefly.
type Transaction struct {
	id string

	mu          sync.Mutex
	shouldStore bool
	state       Facts
}

// New creates an empty transaction with a fresh transaction id.
func New() *Transaction {
	return &Transaction{
		id:    uuid.NewString(),
		state: make(Facts),
	}
}

// ID returns the transaction identifier.
func (t *Transaction) ID() string {
	return t.id
}

// MarkForStorage flags the transaction as eligible for durable storage.
func (t *Transaction) MarkForStorage() {
	t.mu.Lock()
	t.shouldStore = true
	t.mu.Unlock()
}

// ShouldStore reports whether the request marked the trace for storage.
func (t *Transaction) ShouldStore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldStore
}

// Record merges the supplied facts into the accumulated state. Top-level
// keys overwrite previous values except "pipeline_steps", whose entries are
// merged under their stage name so successive stages append rather than
// replace.
func (t *Transaction) Record(facts Facts) {
	if len(facts) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, value := range facts {
		if key != "pipeline_steps" {
			t.state[key] = value
			continue
		}
		incoming, ok := value.(Facts)
		if !ok {
			t.state[key] = value
			continue
		}
		steps, ok := t.state["pipeline_steps"].(Facts)
		if !ok {
			steps = make(Facts, len(incoming))
			t.state["pipeline_steps"] = steps
		}
		for stage, stageFacts := range incoming {
			steps[stage] = stageFacts
		}
	}
}

// Snapshot returns a shallow copy of the accumulated state.
func (t *Transaction) Snapshot() Facts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Facts, len(t.state))
	for key, value := range t.state {
		if key == "pipeline_steps" {
			if steps, ok := value.(Facts); ok {
				copied := make(Facts, len(steps))
				for stage, stageFacts := range steps {
					copied[stage] = stageFacts
				}
				out[key] = copied
				continue
			}
		}
		out[key] = value
	}
	return out
}
