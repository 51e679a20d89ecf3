package rockit

import "sync"

// extBufferRegistry tracks host buffers lent to the MPI as external memory
// blocks. The MPI's free callback retires the handle once the decoder's
// reference count drops; retiring unpins the buffer and fires the owner's
// release callback. A handle is disarmed when the submit fails, so the pin
// is undone but ownership stays with the caller.
type extBufferRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*extBufferEntry
}

type extBufferEntry struct {
	unpin   func()
	release func()
}

func newExtBufferRegistry() *extBufferRegistry {
	return &extBufferRegistry{entries: make(map[uint64]*extBufferEntry)}
}

var extBuffers = newExtBufferRegistry()

func (r *extBufferRegistry) register(unpin, release func()) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &extBufferEntry{unpin: unpin, release: release}
	return r.next
}

func (r *extBufferRegistry) disarm(handle uint64) {
	r.mu.Lock()
	if e, ok := r.entries[handle]; ok {
		e.release = nil
	}
	r.mu.Unlock()
}

func (r *extBufferRegistry) retire(handle uint64) bool {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if ok {
		delete(r.entries, handle)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.unpin != nil {
		e.unpin()
	}
	if e.release != nil {
		e.release()
	}
	return true
}

func (r *extBufferRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
