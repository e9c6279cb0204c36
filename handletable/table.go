package handletable

import "sync"

// Handle is an opaque reference to a value stored in a Table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType enumerates the lifecycle notifications a Table emits.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRemoved
)

// Event describes a single lifecycle transition.
type Event struct {
	Value  any
	Handle Handle
}

// Observer receives lifecycle notifications from a Table.
type Observer interface {
	OnHandleEvent(EventType, Event)
}

// Dropper is optionally implemented by values that need cleanup when
// removed from the table.
type Dropper interface {
	Drop()
}

// Table is a slice-backed allocator of Handles to arbitrary Go values, with
// a free list of slot indices so removed slots are reused. A handle encodes
// the slot index in its high 16 bits and a table-wide insert sequence number
// in its low 16 bits, so a stale handle to a reused slot no longer matches
// that slot. The sequence number is kept to 16 bits and wraps after 65536
// inserts; from then on a new handle can carry the same value as an earlier,
// already removed one.
type Table struct {
	mu        sync.Mutex
	slots     []slot
	freeList  []uint32
	nextSeq   uint32
	observers []Observer
	closed    bool
}

type slot struct {
	value    any
	occupied bool
	seq      uint32
}

// New creates an empty Table.
func New() *Table {
	return &Table{slots: make([]slot, 1)} // index 0 reserved, never allocated
}

func encode(index int, seq uint32) Handle {
	return Handle(uint32(index)<<16 | (seq & 0xffff))
}

func decode(h Handle) (index int, seq uint32) {
	return int(uint32(h) >> 16), uint32(h) & 0xffff
}

// Insert stores a value and returns a fresh handle for it.
func (t *Table) Insert(value any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}

	t.nextSeq++
	seq := t.nextSeq & 0xffff

	var idx int
	if n := len(t.freeList); n > 0 {
		idx = int(t.freeList[n-1])
		t.freeList = t.freeList[:n-1]
		t.slots[idx] = slot{value: value, occupied: true, seq: seq}
	} else {
		idx = len(t.slots)
		t.slots = append(t.slots, slot{value: value, occupied: true, seq: seq})
	}

	h := encode(idx, seq)
	t.notify(EventCreated, Event{Handle: h, Value: value})
	return h
}

// Get retrieves the value for a handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(h)
}

func (t *Table) get(h Handle) (any, bool) {
	idx, seq := decode(h)
	if idx <= 0 || idx >= len(t.slots) {
		return nil, false
	}
	s := t.slots[idx]
	if !s.occupied || s.seq != seq {
		return nil, false
	}
	return s.value, true
}

// Remove drops the handle's value and returns it, if present. If the value
// implements Dropper, Drop is called after the handle is freed for reuse.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	value, ok := t.get(h)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	idx, _ := decode(h)
	t.slots[idx] = slot{}
	t.freeList = append(t.freeList, uint32(idx))
	t.mu.Unlock()

	t.notify(EventRemoved, Event{Handle: h, Value: value})
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	return value, true
}

// Subscribe registers an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of currently occupied handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s.occupied {
			n++
		}
	}
	return n
}

// Each iterates over every currently occupied handle/value pair.
func (t *Table) Each(fn func(Handle, any) bool) {
	t.mu.Lock()
	type pair struct {
		h Handle
		v any
	}
	var pairs []pair
	for idx, s := range t.slots {
		if s.occupied {
			pairs = append(pairs, pair{encode(idx, s.seq), s.value})
		}
	}
	t.mu.Unlock()

	for _, p := range pairs {
		if !fn(p.h, p.v) {
			return
		}
	}
}

// Clear removes every handle currently in the table.
func (t *Table) Clear() {
	var handles []Handle
	t.Each(func(h Handle, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close clears the table and refuses further inserts.
func (t *Table) Close() {
	t.Clear()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Table) notify(evt EventType, e Event) {
	for _, o := range t.observers {
		o.OnHandleEvent(evt, e)
	}
}
