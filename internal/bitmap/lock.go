// Package bitmap implements the page-grained concurrent bitmap allocator
// (§4.2, §8 "Bitmap"): Lock, the lock-free multi-bit reservation
// primitive, and PageAllocator, which carves its own bitmap storage
// out of the region it is given.
package bitmap

import (
	"fmt"
	"sync/atomic"

	"github.com/AshTS/QorKernel/internal/util"
)

// ErrRangeOutOfBounds reports a reservation or clear past the bitmap's
// declared length.
type ErrRangeOutOfBounds struct {
	Start, End, Length uint64
}

func (e *ErrRangeOutOfBounds) Error() string {
	return fmt.Sprintf("bitmap: range [%d,%d) out of bounds (length %d)", e.Start, e.End, e.Length)
}

// ErrUnableToAllocate reports that no run of count clear bits was found.
type ErrUnableToAllocate struct{ Count uint64 }

func (e *ErrUnableToAllocate) Error() string {
	return fmt.Sprintf("bitmap: unable to allocate %d bits", e.Count)
}

// Lock is a collection of single-bit locks packed into a slice of 64-bit
// words (§4.2, §9 "Packed state with a lock bit inside the same word" —
// the same optimistic-acquire discipline the byte allocator uses, applied
// here per-bit instead of per-entry).
type Lock struct {
	bitmap []atomic.Uint64
	length uint64
}

// NewLock wraps a slice of words, shared by reference so every caller sees
// the same underlying bits. length must not exceed bitmap's bit-capacity;
// if it does, the capacity wins, since a Lock can never address more bits
// than it has storage words for regardless of what a caller asks for.
func NewLock(bitmap []atomic.Uint64, length uint64) *Lock {
	cap := uint64(len(bitmap)) * 64
	if length > cap {
		length = cap
	}
	return &Lock{bitmap: bitmap, length: length}
}

// Len reports the number of bits addressable by this lock.
func (l *Lock) Len() uint64 { return l.length }

func (l *Lock) clearInEntry(entryIndex int, mask uint64) {
	for {
		old := l.bitmap[entryIndex].Load()
		if l.bitmap[entryIndex].CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// Clear clears count bits starting at bit index index.
func (l *Lock) Clear(index, count uint64) error {
	if index+count > l.length {
		return &ErrRangeOutOfBounds{index, index + count, l.length}
	}
	entryIndex := int(index / 64)
	offset := index % 64
	bitCount := util.Min(count, 64-offset)
	mask := spanMask(offset, bitCount)
	l.clearInEntry(entryIndex, mask)
	if rest := count - bitCount; rest > 0 {
		return l.Clear(index+bitCount, rest)
	}
	return nil
}

// TrySet attempts to atomically claim count bits starting at bit index
// index, returning true iff it claimed all of them. On partial failure it
// unwinds whatever it already claimed.
func (l *Lock) TrySet(index, count uint64) (bool, error) {
	if index+count > l.length {
		return false, &ErrRangeOutOfBounds{index, index + count, l.length}
	}
	entryIndex := int(index / 64)
	offset := index % 64
	bitCount := util.Min(count, 64-offset)
	mask := spanMask(offset, bitCount)

	if !l.acquireInEntry(entryIndex, mask) {
		return false, nil
	}
	if rest := count - bitCount; rest > 0 {
		ok, err := l.TrySet(index+bitCount, rest)
		if err != nil {
			return false, err
		}
		if !ok {
			l.clearInEntry(entryIndex, mask)
			return false, nil
		}
	}
	return true, nil
}

// acquireInEntry is the optimistic-OR-then-unwind primitive from §4.2 and
// §9: fetch-or the mask in, then if any bit collided with one already set,
// clear back out the bits this call newly acquired.
func (l *Lock) acquireInEntry(entryIndex int, mask uint64) bool {
	var old uint64
	for {
		cur := l.bitmap[entryIndex].Load()
		old = cur
		if l.bitmap[entryIndex].CompareAndSwap(cur, cur|mask) {
			break
		}
	}
	if old&mask != 0 {
		excess := mask &^ old
		l.clearInEntry(entryIndex, excess)
		return false
	}
	return true
}

// ReserveSequence scans for the first run of count clear bits and claims
// them atomically, returning the bit index of the first one.
func (l *Lock) ReserveSequence(count uint64) (uint64, error) {
	for entryIndex := 0; entryIndex < len(l.bitmap); entryIndex++ {
		maskOffImpossible := l.bitmap[entryIndex].Load()
		for maskOffImpossible != ^uint64(0) {
			bitOffset := trailingOnes(maskOffImpossible)
			index := uint64(entryIndex)*64 + bitOffset

			ok, err := l.TrySet(index, count)
			if err == nil && ok {
				return index, nil
			}
			if _, isRange := err.(*ErrRangeOutOfBounds); isRange {
				break
			}
			maskOffImpossible |= 1 << bitOffset
		}
	}
	return 0, &ErrUnableToAllocate{Count: count}
}

func spanMask(offset, bitCount uint64) uint64 {
	if bitCount >= 64 {
		return ^uint64(0)
	}
	return ((uint64(1) << bitCount) - 1) << offset
}

func trailingOnes(v uint64) uint64 {
	n := uint64(0)
	for v&1 == 1 {
		n++
		v >>= 1
	}
	return n
}
