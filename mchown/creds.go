package mchown

import "fmt"

// unusedID marks a credential slot that holds no (uid, gid) pair.
const unusedID = ^uint32(0)

// Credential is the owning user and group every entry of a hierarchy is
// changed to. Jobs share a *Credential from the pool's table instead of
// carrying their own copy.
type Credential struct {
	UID uint32
	GID uint32
}

func (c Credential) String() string {
	return fmt.Sprintf("%d:%d", c.UID, c.GID)
}

func (c Credential) unused() bool {
	return c.UID == unusedID && c.GID == unusedID
}

func (c Credential) matches(uid, gid uint32) bool {
	return c.UID == uid && c.GID == gid
}

// credTable is a fixed set of credential slots, one per possible in-flight
// hierarchy plus the invoker. It is not safe for concurrent use; the pool
// guards it with the same mutex as the job slab.
type credTable struct {
	slots []Credential
	refs  []int
}

func newCredTable(capacity int) *credTable {
	t := &credTable{slots: make([]Credential, capacity), refs: make([]int, capacity)}
	for i := range t.slots {
		t.slots[i] = Credential{UID: unusedID, GID: unusedID}
	}
	return t
}

// acquire returns the slot already holding (uid, gid) or claims the first
// unused one for it.
func (t *credTable) acquire(uid, gid uint32) (*Credential, error) {
	for i := range t.slots {
		if t.refs[i] > 0 && t.slots[i].matches(uid, gid) {
			t.refs[i]++
			return &t.slots[i], nil
		}
	}
	for i := range t.slots {
		if t.refs[i] == 0 {
			t.slots[i] = Credential{UID: uid, GID: gid}
			t.refs[i] = 1
			return &t.slots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no slot for %d:%d (capacity %d)", ErrCredentialTableFull, uid, gid, len(t.slots))
}

// release drops one reference to c. The slot goes back to the sentinel pair
// when the last holder releases it.
func (t *credTable) release(c *Credential) {
	for i := range t.slots {
		if &t.slots[i] != c {
			continue
		}
		if t.refs[i]--; t.refs[i] <= 0 {
			t.refs[i] = 0
			t.slots[i] = Credential{UID: unusedID, GID: unusedID}
		}
		return
	}
}

func (t *credTable) inUse() int {
	n := 0
	for i := range t.slots {
		if t.refs[i] > 0 {
			n++
		}
	}
	return n
}
