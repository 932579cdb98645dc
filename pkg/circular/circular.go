package circular

import (
	"fmt"
	"sync"
)

/*
 * Data structure implementing a fixed-size circular buffer.
 *
 * The pointer always refers to the oldest element, which is the next one to
 * be overwritten. The buffer is safe for concurrent use.
 */
type Buffer[T any] struct {
	mutex   sync.RWMutex
	values  []T
	pointer int
	filled  int
}

/*
 * Add elements to the circular buffer, overwriting the oldest ones.
 */
func (b *Buffer[T]) Enqueue(elems ...T) {
	numElems := len(elems)
	n := len(b.values)

	if n == 0 || numElems == 0 {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	/*
	 * If there are more elements than fit into the buffer, only the tail
	 * survives and the buffer starts over at its first slot.
	 */
	if numElems >= n {
		copy(b.values, elems[numElems-n:])
		b.pointer = 0
		b.filled = n
		return
	}

	ptr := b.pointer
	tail := n - ptr

	if numElems <= tail {
		copy(b.values[ptr:ptr+numElems], elems)
	} else {
		copy(b.values[ptr:n], elems[:tail])
		copy(b.values[:numElems-tail], elems[tail:])
	}

	b.pointer = (ptr + numElems) % n
	b.filled += numElems

	if b.filled > n {
		b.filled = n
	}

}

/*
 * Returns the capacity of the buffer.
 */
func (b *Buffer[T]) Length() int {
	return len(b.values)
}

/*
 * Returns the number of elements written so far, at most the capacity.
 */
func (b *Buffer[T]) Filled() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.filled
}

/*
 * Copies the whole buffer, oldest element first, into a target buffer of the
 * same size. Slots that were never written hold the zero value.
 */
func (b *Buffer[T]) Retrieve(buf []T) error {
	n := len(b.values)

	if len(buf) != n {
		return fmt.Errorf("target buffer must hold %d elements, got %d", n, len(buf))
	}

	b.mutex.RLock()
	ptr := b.pointer
	tailSize := n - ptr
	copy(buf[:tailSize], b.values[ptr:n])
	copy(buf[tailSize:n], b.values[:ptr])
	b.mutex.RUnlock()
	return nil
}

/*
 * Returns the elements written so far, oldest first.
 */
func (b *Buffer[T]) Snapshot() []T {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	n := len(b.values)
	out := make([]T, 0, b.filled)
	start := b.pointer

	/*
	 * Until the buffer wraps, the oldest element sits at index zero.
	 */
	if b.filled < n {
		start = 0
	}

	for i := 0; i < b.filled; i++ {
		out = append(out, b.values[(start+i)%n])
	}

	return out
}

/*
 * Returns the n-th newest element, where zero is the most recent one.
 */
func (b *Buffer[T]) Newest(n int) (T, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	var zero T

	if n < 0 || n >= b.filled {
		return zero, false
	}

	length := len(b.values)
	index := ((b.pointer-1-n)%length + length) % length
	return b.values[index], true
}

/*
 * Creates a circular buffer of a certain size.
 */
func CreateBuffer[T any](size int) *Buffer[T] {

	if size < 0 {
		size = 0
	}

	return &Buffer[T]{
		values: make([]T, size),
	}
}
