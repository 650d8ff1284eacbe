package workflow

import (
	"sort"
	"sync/atomic"
	"time"
)

// HeartbeatRegistry records the last activity of each worker. The key set is
// fixed at construction; each worker writes only its own slot and readers
// never lock.
type HeartbeatRegistry struct {
	ids   []int
	slots map[int]*heartbeatSlot
}

type heartbeatSlot struct {
	last    atomic.Int64
	retired atomic.Bool
}

// Heartbeat is a point-in-time view of one worker slot.
type Heartbeat struct {
	Worker  int
	Last    time.Time
	Retired bool
}

// NewHeartbeatRegistry creates one slot per worker id, each initialized to start.
func NewHeartbeatRegistry(ids []int, start time.Time) *HeartbeatRegistry {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	r := &HeartbeatRegistry{ids: sorted, slots: make(map[int]*heartbeatSlot, len(ids))}
	for _, id := range sorted {
		slot := &heartbeatSlot{}
		slot.last.Store(start.UnixNano())
		r.slots[id] = slot
	}
	return r
}

// Touch records activity for id at now. Unknown ids are ignored.
func (r *HeartbeatRegistry) Touch(id int, now time.Time) {
	slot, ok := r.slots[id]
	if !ok {
		return
	}
	ts := now.UnixNano()
	for {
		prev := slot.last.Load()
		if ts <= prev || slot.last.CompareAndSwap(prev, ts) {
			return
		}
	}
}

// Retire marks id as cleanly drained; the watchdog stops watching it.
func (r *HeartbeatRegistry) Retire(id int) {
	if slot, ok := r.slots[id]; ok {
		slot.retired.Store(true)
	}
}

// Last returns the last activity time for id.
func (r *HeartbeatRegistry) Last(id int) (time.Time, bool) {
	slot, ok := r.slots[id]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, slot.last.Load()), true
}

// IDs returns the worker ids in ascending order.
func (r *HeartbeatRegistry) IDs() []int {
	return append([]int(nil), r.ids...)
}

// Snapshot returns every slot in ascending id order.
func (r *HeartbeatRegistry) Snapshot() []Heartbeat {
	out := make([]Heartbeat, 0, len(r.ids))
	for _, id := range r.ids {
		slot := r.slots[id]
		out = append(out, Heartbeat{
			Worker:  id,
			Last:    time.Unix(0, slot.last.Load()),
			Retired: slot.retired.Load(),
		})
	}
	return out
}
