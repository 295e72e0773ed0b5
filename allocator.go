package buckettree

// Allocator is the injected memory resource BucketTree uses for its
// node-sized buffers, mirroring the original's IAllocator/MemoryResource
// collaborator (spec.md §6). Allocate returns nil to signal exhaustion
// rather than panicking, so callers can surface ErrOutOfMemory.
type Allocator interface {
	Allocate(size, alignment int) []byte
	Deallocate(buf []byte)
}

// defaultAllocator is a make()-backed Allocator. No ecosystem arena or
// pool library in the retrieval pack fits this role (see DESIGN.md); a
// plain heap allocation is what every comparable example repo does for
// fixed-size node buffers.
type defaultAllocator struct{}

// NewDefaultAllocator returns an Allocator backed by the Go heap. Go
// slices from make() are always usable as byte arrays with natural
// alignment for any type up to the platform word size, which covers the
// 8-byte alignment BucketTree requires for its offset nodes.
func NewDefaultAllocator() Allocator {
	return defaultAllocator{}
}

func (defaultAllocator) Allocate(size, alignment int) []byte {
	return make([]byte, size)
}

func (defaultAllocator) Deallocate(buf []byte) {
	// Nothing to do: the Go garbage collector reclaims the backing
	// array once the buffer is unreferenced.
}
