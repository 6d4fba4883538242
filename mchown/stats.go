package mchown

import "sync/atomic"

// Stats are the counters of one invocation, or of a whole pool. Walks fold
// their local counts in with a single atomic add per counter when a job
// finishes.
type Stats struct {
	filesChanged   atomic.Uint64
	filesUnchanged atomic.Uint64
	dirsChanged    atomic.Uint64
	dirsUnchanged  atomic.Uint64
	failures       atomic.Uint64
	dirsQueued     atomic.Uint64
	fallbacks      atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats. Read it after drain for exact
// totals.
type Snapshot struct {
	FilesChanged   uint64
	FilesUnchanged uint64
	DirsChanged    uint64
	DirsUnchanged  uint64
	Failures       uint64
	DirsQueued     uint64
	Fallbacks      uint64
}

// Changed is the number of entries whose ownership was modified.
func (s Snapshot) Changed() uint64 {
	return s.FilesChanged + s.DirsChanged
}

// Processed counts every entry that ends up with the requested owner,
// whether it was changed or already correct.
func (s Snapshot) Processed() uint64 {
	return s.Changed() + s.FilesUnchanged + s.DirsUnchanged
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FilesChanged:   s.filesChanged.Load(),
		FilesUnchanged: s.filesUnchanged.Load(),
		DirsChanged:    s.dirsChanged.Load(),
		DirsUnchanged:  s.dirsUnchanged.Load(),
		Failures:       s.failures.Load(),
		DirsQueued:     s.dirsQueued.Load(),
		Fallbacks:      s.fallbacks.Load(),
	}
}

// jobCounts are the per-walk tallies before they are published.
type jobCounts struct {
	filesChanged   uint64
	linksChanged   uint64
	filesUnchanged uint64
	dirsChanged    uint64
	dirsUnchanged  uint64
	failures       uint64
	dirsQueued     uint64
	fallbacks      uint64
}

func (s *Stats) add(c *jobCounts) {
	s.filesChanged.Add(c.filesChanged + c.linksChanged)
	s.filesUnchanged.Add(c.filesUnchanged)
	s.dirsChanged.Add(c.dirsChanged)
	s.dirsUnchanged.Add(c.dirsUnchanged)
	s.failures.Add(c.failures)
	s.dirsQueued.Add(c.dirsQueued)
	s.fallbacks.Add(c.fallbacks)
}
