package toolcall

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Batch is the ordered collection of call records created from one model
// turn. The scheduler owns it exclusively for its lifetime and discards it
// after the completion callback fires; batches are never reused.
type Batch struct {
	id      string
	records []*Call
	byID    map[string]*Call
}

// NewBatch builds a batch from the ordered request sequence. It fails with
// ErrInvalidRequest when the sequence is empty, an id is blank, a tool name
// is blank, or an id repeats.
func NewBatch(requests []Request) (*Batch, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: empty request sequence", ErrInvalidRequest)
	}

	id, _ := gonanoid.New()
	b := &Batch{
		id:      id,
		records: make([]*Call, 0, len(requests)),
		byID:    make(map[string]*Call, len(requests)),
	}

	for i, req := range requests {
		if req.ID == "" {
			return nil, fmt.Errorf("%w: request %d has no id", ErrInvalidRequest, i)
		}
		if req.Tool == "" {
			return nil, fmt.Errorf("%w: request %q has no tool name", ErrInvalidRequest, req.ID)
		}
		if _, exists := b.byID[req.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRequest, req.ID)
		}
		rec := newCall(req)
		b.records = append(b.records, rec)
		b.byID[req.ID] = rec
	}

	return b, nil
}

// ID returns the generated batch identifier.
func (b *Batch) ID() string { return b.id }

// Record looks up a call by id, failing with ErrNotFound for unknown ids.
func (b *Batch) Record(id string) (*Call, error) {
	rec, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rec, nil
}

// Records returns the calls in original request order. The slice is a copy;
// the records themselves are shared.
func (b *Batch) Records() []*Call {
	out := make([]*Call, len(b.records))
	copy(out, b.records)
	return out
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int { return len(b.records) }

// Complete reports whether every record has reached a terminal state.
func (b *Batch) Complete() bool {
	for _, rec := range b.records {
		if !rec.State().IsTerminal() {
			return false
		}
	}
	return true
}

// Results assembles each record's terminal result in original request order.
// Records that are still live produce a zero-payload entry carrying their
// current state, so callers should only read this once Complete reports true.
func (b *Batch) Results() []Result {
	out := make([]Result, 0, len(b.records))
	for _, rec := range b.records {
		if res, ok := rec.Result(); ok {
			out = append(out, res)
			continue
		}
		out = append(out, Result{ID: rec.ID(), Tool: rec.Tool(), State: rec.State()})
	}
	return out
}
