// Package queue provides the concurrent FIFO used to model hardware word queues.
package queue

// Queue is a first-in first-out queue of T.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false if the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (item T, ok bool)
	// Reset empties the queue.
	Reset()
	// IsEmpty returns true if the queue is empty.
	IsEmpty() bool
	// Length returns the number of queued items.
	Length() int
}
