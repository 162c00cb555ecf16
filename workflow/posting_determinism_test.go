package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended posting semantics:
// - double-submitted requests are applied exactly once via durable request ids
// - per-invoice serialization prevents racey interleavings inside posting
//
// Full DB integration tests should be added in an environment that can run MySQL + Redis.

type fakePoster struct {
	muByInvoice map[int]*sync.Mutex
	mu          sync.Mutex
	seen        map[string]bool
	applied     int
}

func newFakePoster() *fakePoster {
	return &fakePoster{
		muByInvoice: map[int]*sync.Mutex{},
		seen:        map[string]bool{},
	}
}

func (p *fakePoster) post(invoiceId int, handlerName, requestId string, fn func()) {
	// Serialize per invoice (models the GET_LOCK posting lock).
	p.mu.Lock()
	im := p.muByInvoice[invoiceId]
	if im == nil {
		im = &sync.Mutex{}
		p.muByInvoice[invoiceId] = im
	}
	p.mu.Unlock()

	im.Lock()
	defer im.Unlock()

	// Deduplicate (models the IdempotencyKey row).
	key := handlerName + "|" + requestId
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	fn()

	p.mu.Lock()
	p.applied++
	p.mu.Unlock()
}

func TestPosting_DoubleSubmitAppliedOnce(t *testing.T) {
	p := newFakePoster()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.post(1, "payment.invoice", "req-abc", func() {})
		}()
	}
	wg.Wait()

	if p.applied != 1 {
		t.Fatalf("expected exactly 1 applied payment, got %d", p.applied)
	}
}

func TestPosting_DeterministicUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		p := newFakePoster()
		var wg sync.WaitGroup

		// same scenario, repeated concurrently
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.post(1, "payment.invoice", "req-1", func() {})
				p.post(1, "return.invoice", "req-2", func() {})
				p.post(1, "payment.invoice", "req-1", func() {}) // duplicate
			}()
		}
		wg.Wait()

		if p.applied != 2 {
			t.Fatalf("run=%d expected 2 unique postings, got %d", run, p.applied)
		}
	}
}
