package mchown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForDrain_LeavesNothingBehind(t *testing.T) {
	root := t.TempDir()
	buildWideTree(t, root, 4, 3, 2)
	p := newTestPool(t, 4, newFakeOps(foreign))

	sum, err := p.Run(root, target.UID, target.GID)
	require.NoError(t, err)

	for _, slot := range p.Slots() {
		assert.NotEqual(t, sum.HierarchyID, slot.HierarchyID(), "worker %02d", slot.Ordinal())
		assert.False(t, slot.Busy(), "worker %02d", slot.Ordinal())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Zero(t, p.queue.sizeHint())
	assert.Empty(t, p.pending)
	assert.Equal(t, p.slab.capacity(), p.slab.available(), "every job returned to the slab")
}

func TestWaitForDrain_WaitsForRunningJob(t *testing.T) {
	ops := newFakeOps(foreign)
	release := make(chan struct{})
	started := make(chan struct{})
	ops.onOpen = func(string) {
		close(started)
		<-release
	}
	p := newTestPool(t, 1, ops)
	cred, _ := p.AcquireCredential(1, 1)
	hid := p.NewHierarchyID()

	require.True(t, p.enqueue(context.Background(), t.TempDir(), "slow", cred, hid))
	<-started

	done := make(chan error, 1)
	go func() { done <- p.WaitForDrain(hid) }()

	select {
	case err := <-done:
		t.Fatalf("drain returned while a job was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		// the job's directory does not exist, which aborts the run
		assert.True(t, errors.Is(err, ErrTraversalAborted), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not return after the job finished")
	}
}

func TestWaitForDrain_IgnoresOtherHierarchies(t *testing.T) {
	ops := newFakeOps(foreign)
	release := make(chan struct{})
	ops.onOpen = func(string) { <-release }
	p := newTestPool(t, 1, ops)
	defer close(release)
	cred, _ := p.AcquireCredential(1, 1)

	busy := p.NewHierarchyID()
	idle := p.NewHierarchyID()
	require.True(t, p.enqueue(context.Background(), t.TempDir(), "x", cred, busy))

	done := make(chan error, 1)
	go func() { done <- p.WaitForDrain(idle) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain of an idle hierarchy blocked on another one")
	}
}

func TestWaitForDrain_AfterShutdownJoinsPool(t *testing.T) {
	p := newTestPool(t, 3, nil)
	stop := errors.New("operator stop")
	p.Shutdown(stop)

	err := p.WaitForDrain(1)

	assert.True(t, errors.Is(err, stop))
	for _, slot := range p.Slots()[1:] {
		assert.True(t, slot.Exited(), "worker %02d not joined", slot.Ordinal())
	}
}

func TestDrainPolicy_Backoff(t *testing.T) {
	pol := DrainPolicy{Interval: 10 * time.Millisecond, Step: 2 * time.Millisecond, MaxBackoffRounds: 3, QuietRounds: 3}

	assert.Equal(t, 10*time.Millisecond, pol.sleepFor(0))
	assert.Equal(t, 14*time.Millisecond, pol.sleepFor(2))
	assert.Equal(t, 16*time.Millisecond, pol.sleepFor(3))
	assert.Equal(t, 16*time.Millisecond, pol.sleepFor(50), "backoff is capped")
}

func TestDrainPolicy_Defaults(t *testing.T) {
	got := DrainPolicy{}.withDefaults()
	assert.Equal(t, DefaultDrainPolicy(), got)
	assert.Equal(t, 3, got.QuietRounds)
}
