// Package reqtable holds the pending-request table: the map from request
// id to the responder/completion/timestamp/validator tuple the demux and
// terminator consult when a reply or a timeout arrives. Grounded on
// mb0-daql's hub.RequestMap, generalized to carry the full pending record
// and to support sweep-by-age rather than just note/response correlation.
package reqtable

import (
	"fmt"
	"sync"
	"time"

	"github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/protocol"
)

// Validator evaluates a reply before the completion callback fires. A
// validator returning (false, nil) rejects the reply without error; a
// non-nil error is treated the same as rejection but logged distinctly by
// the caller.
type Validator func(*protocol.Reply) (bool, error)

// CompletionFunc is invoked at most once per pending record, whether by a
// normal reply, a terminator sweep, or resolver enrichment completing.
type CompletionFunc func(responder any, timestamp time.Time, reply *protocol.Reply, status int)

// Record is one pending request: the HTTP responder handle, the
// completion callback, the time it was issued, and an optional validator.
type Record struct {
	ID         uint64
	Responder  any
	Completion CompletionFunc
	Timestamp  time.Time
	Validator  Validator
}

// ErrDuplicateID is wrapped by Insert when id is already pending.
var ErrDuplicateID = fmt.Errorf("reqtable: id already pending")

// Table is the pending-request table. Guarded by a single mutex, per the
// "one coarse lock, not fine-grained locking" guidance that governs every
// piece of shared state in this system.
type Table struct {
	mu      sync.Mutex
	records map[uint64]*Record
}

// New returns an empty Table.
func New() *Table {
	return &Table{records: make(map[uint64]*Record)}
}

// Insert adds rec, failing if its id is already present.
func (t *Table) Insert(rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[rec.ID]; exists {
		return errors.WrapInvalid(ErrDuplicateID, "Table", "Insert",
			fmt.Sprintf("id %d already pending", rec.ID))
	}
	t.records[rec.ID] = rec
	return nil
}

// Take atomically removes and returns the record for id, if present.
func (t *Table) Take(id uint64) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if ok {
		delete(t.records, id)
	}
	return rec, ok
}

// Sweep removes and returns every record older than deadline as of now.
func (t *Table) Sweep(now time.Time, deadline time.Duration) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*Record
	for id, rec := range t.records {
		if now.Sub(rec.Timestamp) > deadline {
			expired = append(expired, rec)
			delete(t.records, id)
		}
	}
	return expired
}

// Len returns the number of currently pending records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
