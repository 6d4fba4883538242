package mchown

import "time"

// DrainPolicy controls the polling in WaitForDrain.
type DrainPolicy struct {
	// Interval is the first sleep between checks.
	Interval time.Duration
	// Step is added to the sleep for every round already done.
	Step time.Duration
	// MaxBackoffRounds caps how many Steps are added.
	MaxBackoffRounds int
	// QuietRounds is how many consecutive rounds must see no work for the
	// hierarchy before it counts as drained.
	QuietRounds int
}

func DefaultDrainPolicy() DrainPolicy {
	return DrainPolicy{
		Interval:         150 * time.Millisecond,
		Step:             20 * time.Millisecond,
		MaxBackoffRounds: 10,
		QuietRounds:      3,
	}
}

func (d DrainPolicy) withDefaults() DrainPolicy {
	def := DefaultDrainPolicy()
	if d.Interval <= 0 {
		d.Interval = def.Interval
	}
	if d.Step <= 0 {
		d.Step = def.Step
	}
	if d.MaxBackoffRounds <= 0 {
		d.MaxBackoffRounds = def.MaxBackoffRounds
	}
	if d.QuietRounds <= 0 {
		d.QuietRounds = def.QuietRounds
	}
	return d
}

func (d DrainPolicy) sleepFor(round int) time.Duration {
	return d.Interval + time.Duration(min(round, d.MaxBackoffRounds))*d.Step
}

// WaitForDrain blocks until no job tagged hid is queued or being walked.
//
// Each round wakes idle workers if the queue has entries, sleeps with a
// growing backoff, and then looks for the hierarchy in the pending count and
// in every worker slot. QuietRounds rounds in a row without a hit end the
// wait. The pending count is exact, so the slot scan only guards the window
// between a worker dequeuing a job and publishing it.
//
// If the pool shuts down, before or during the wait, the pool is joined and
// the shutdown cause is returned.
func (p *Pool) WaitForDrain(hid uint64) error {
	if p.ShuttingDown() {
		p.Close()
		return p.Err()
	}

	pol := p.opts.Drain
	quiet := 0
	for round := 0; quiet < pol.QuietRounds; round++ {
		p.mu.Lock()
		if p.queue.sizeHint() > 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()

		t := time.NewTimer(pol.sleepFor(round))
		select {
		case <-p.ctx.Done():
			t.Stop()
			p.Close()
			return p.Err()
		case <-t.C:
		}

		if p.inFlight(hid) {
			quiet = 0
		} else {
			quiet++
		}
	}
	return nil
}

// inFlight reports whether any work for hid is still pending or running.
func (p *Pool) inFlight(hid uint64) bool {
	p.mu.Lock()
	pending := p.pending[hid]
	p.mu.Unlock()
	if pending > 0 {
		return true
	}
	for _, slot := range p.slots[1:] {
		if slot.HierarchyID() == hid {
			return true
		}
	}
	return false
}
