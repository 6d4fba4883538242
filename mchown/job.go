package mchown

import "fmt"

const (
	// PathBufSize is the size of the path buffer a queued job may use,
	// including the terminating NUL the kernel interface needs.
	PathBufSize = 2048

	// MaxJoinedPathLen is the longest dir+name combination (separator and
	// NUL excluded) that can be handed to another worker.
	MaxJoinedPathLen = PathBufSize - 2
)

// DirectoryJob is one directory waiting to be, or being, walked.
type DirectoryJob struct {
	Path        string
	Cred        *Credential
	HierarchyID uint64
}

func (j *DirectoryJob) reset() {
	j.Path = ""
	j.Cred = nil
	j.HierarchyID = 0
}

// child builds the job for a subdirectory of j.
func (j *DirectoryJob) child(name string) DirectoryJob {
	return DirectoryJob{
		Path:        joinPath(j.Path, name),
		Cred:        j.Cred,
		HierarchyID: j.HierarchyID,
	}
}

func joinPath(dir, name string) string {
	if len(dir) > 0 && dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}

type slotState uint8

const (
	slotFree slotState = iota
	slotQueued
	slotActive
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotQueued:
		return "queued"
	case slotActive:
		return "active"
	default:
		return "unknown"
	}
}

// jobSlab is a fixed arena of job records handed out by index. Records hold
// no links of their own: free indices live on a stack, queued ones in the
// work queue, and every record carries an explicit state so a record can
// never be both free and queued.
//
// The caller must hold the pool mutex for every method.
type jobSlab struct {
	jobs  []DirectoryJob
	state []slotState
	free  []int
}

func newJobSlab(capacity int) *jobSlab {
	s := &jobSlab{
		jobs:  make([]DirectoryJob, capacity),
		state: make([]slotState, capacity),
		free:  make([]int, 0, capacity),
	}
	// push in reverse so index 0 is handed out first
	for i := capacity - 1; i >= 0; i-- {
		s.free = append(s.free, i)
	}
	return s
}

// acquire pops a free record. It never blocks and never grows the arena;
// false means no capacity.
func (s *jobSlab) acquire() (int, bool) {
	if len(s.free) == 0 {
		return -1, false
	}
	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.transition(idx, slotFree, slotQueued)
	return idx, true
}

// activate marks a dequeued record as claimed by a worker.
func (s *jobSlab) activate(idx int) {
	s.transition(idx, slotQueued, slotActive)
}

// release clears a claimed record and returns it to the head of the free list.
func (s *jobSlab) release(idx int) {
	s.transition(idx, slotActive, slotFree)
	s.jobs[idx].reset()
	s.free = append(s.free, idx)
}

func (s *jobSlab) job(idx int) *DirectoryJob {
	return &s.jobs[idx]
}

func (s *jobSlab) transition(idx int, from, to slotState) {
	if s.state[idx] != from {
		panic(fmt.Sprintf("mchown: job slot %d is %s, expected %s", idx, s.state[idx], from))
	}
	s.state[idx] = to
}

func (s *jobSlab) capacity() int {
	return len(s.jobs)
}

func (s *jobSlab) available() int {
	return len(s.free)
}
