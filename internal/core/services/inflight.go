package services

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// InFlight tracks which operations are pending for each tenant.
// A tenant may run different operations concurrently, but never the same one twice.
type InFlight struct {
	mu  sync.Mutex
	ops map[int64]map[domain.Operation]struct{}
}

// NewInFlight creates an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{ops: make(map[int64]map[domain.Operation]struct{})}
}

// Begin marks op as pending for the tenant. The returned release func must be
// called when the operation finishes; calling it more than once is harmless.
func (f *InFlight) Begin(tenantID int64, op domain.Operation) (release func(), err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.ops[tenantID]
	if !ok {
		set = make(map[domain.Operation]struct{})
		f.ops[tenantID] = set
	}
	if _, busy := set[op]; busy {
		return nil, fmt.Errorf("%w: %s for tenant %d", domain.ErrOperationInFlight, op, tenantID)
	}
	set[op] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { f.end(tenantID, op) })
	}, nil
}

func (f *InFlight) end(tenantID int64, op domain.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.ops[tenantID]
	delete(set, op)
	if len(set) == 0 {
		delete(f.ops, tenantID)
	}
}

// Busy reports whether op is pending for the tenant.
func (f *InFlight) Busy(tenantID int64, op domain.Operation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ops[tenantID][op]
	return ok
}

// Pending lists the operations pending for the tenant in declaration order.
func (f *InFlight) Pending(tenantID int64) []domain.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.ops[tenantID]
	if len(set) == 0 {
		return nil
	}
	var out []domain.Operation
	for _, op := range domain.Operations() {
		if _, ok := set[op]; ok {
			out = append(out, op)
		}
	}
	return out
}
