package persona

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// QueueDepth bounds how many actions may wait for processing.
const QueueDepth = 10

// Processor funnels all mutation through a single consumer. Pending actions
// stay ordered by timestamp so a replayed batch lands in the order it
// happened, not the order it arrived.
type Processor struct {
	mgr *PersonalityStateManager

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*PlayerAction
	closed  bool

	dropped  int
	warnRate *rate.Limiter
}

// NewProcessor wraps a manager with a bounded ordered queue.
func NewProcessor(mgr *PersonalityStateManager) *Processor {
	p := &Processor{
		mgr: mgr,
		// Overflow warnings are throttled so a flood logs once, not per drop.
		warnRate: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Enqueue queues an action for processing. A full queue rejects the action
// with ErrQueueFull; the caller decides whether to retry.
func (p *Processor) Enqueue(a *PlayerAction) error {
	if a == nil {
		return ErrNilAction
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrQueueFull
	}
	if len(p.pending) >= QueueDepth {
		p.dropped++
		if p.warnRate.Allow() {
			log.Printf("[PERSONA] queue full depth=%d dropped=%d action=%s", QueueDepth, p.dropped, a.Type)
		}
		return ErrQueueFull
	}
	p.pending = append(p.pending, a)
	sort.SliceStable(p.pending, func(i, j int) bool {
		return p.pending[i].Timestamp.Before(p.pending[j].Timestamp)
	})
	p.cond.Signal()
	return nil
}

// Run consumes the queue until ctx is cancelled. Intended to run on its own
// goroutine; there must be at most one consumer.
func (p *Processor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	}()

	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		a := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		if _, err := p.mgr.ProcessAction(a); err != nil {
			log.Printf("[PERSONA] process failed action=%s err=%v", a.Type, err)
		}
	}
}

// Drain synchronously processes everything currently queued. Useful when the
// caller drives the loop itself instead of running a consumer goroutine.
func (p *Processor) Drain() int {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	processed := 0
	for _, a := range batch {
		if _, err := p.mgr.ProcessAction(a); err != nil {
			log.Printf("[PERSONA] process failed action=%s err=%v", a.Type, err)
			continue
		}
		processed++
	}
	return processed
}

// Pending returns the current queue length.
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Dropped returns how many actions were rejected on overflow.
func (p *Processor) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
