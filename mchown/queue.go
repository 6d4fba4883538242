package mchown

// workQueue is a FIFO ring of job slab indices. Its capacity equals the slab
// size, so add can only overflow on a bookkeeping bug.
//
// The caller must hold the pool mutex for every method.
type workQueue struct {
	ring  []int
	head  int
	count int
}

func newWorkQueue(capacity int) *workQueue {
	return &workQueue{ring: make([]int, capacity)}
}

func (q *workQueue) add(idx int) {
	if q.count == len(q.ring) {
		panic("mchown: work queue overflow")
	}
	q.ring[(q.head+q.count)%len(q.ring)] = idx
	q.count++
}

func (q *workQueue) removeHead() (int, bool) {
	if q.count == 0 {
		return -1, false
	}
	idx := q.ring[q.head]
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return idx, true
}

// sizeHint is advisory once the mutex is dropped.
func (q *workQueue) sizeHint() int {
	return q.count
}
