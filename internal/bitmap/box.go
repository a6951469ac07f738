package bitmap

import "github.com/AshTS/QorKernel/internal/mem"

// Box is an RAII-owning handle over a bitmap-allocator region: Close
// frees it, mirroring the original's Drop impl on PageBox. The zero value
// is not usable; construct one via AllocBoxed.
type Box[T any] struct {
	allocator *PageAllocator
	ptr       *T
	pageCount uint64
	closed    bool
}

// AllocBoxed allocates ⌈sizeof(T)/PageSize⌉ pages from a, places object in
// them, and returns an owning handle.
func AllocBoxed[T any](a *PageAllocator, object T) (*Box[T], error) {
	var zero T
	size := sizeOf(zero)
	pages := (uint64(size) + mem.PageSize - 1) / mem.PageSize
	if pages == 0 {
		pages = 1
	}
	p, err := a.Allocate(pages)
	if err != nil {
		return nil, err
	}
	typed := (*T)(ptrOf(p))
	*typed = object
	return &Box[T]{allocator: a, ptr: typed, pageCount: pages}, nil
}

// Get returns the boxed value for read/write access.
func (b *Box[T]) Get() *T { return b.ptr }

// Close frees the backing pages. It panics if called twice, matching the
// single-owner assumption the original's Drop relies on.
func (b *Box[T]) Close() error {
	if b.closed {
		panic("bitmap: double free of Box")
	}
	b.closed = true
	return b.allocator.Free((*mem.Page)(ptrOf(b.ptr)), b.pageCount)
}
