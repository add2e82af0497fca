package memory

import (
	"container/heap"
	"time"
)

// sessionExpiry pairs a session id with the absolute instant it should be
// evicted from the in-memory store.
type sessionExpiry struct {
	expires   time.Time
	sessionID string
}

type expiryHeap []*sessionExpiry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	return h[i].expires.Before(h[j].expires)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *expiryHeap) Push(e any) {
	*h = append(*h, e.(*sessionExpiry))
}

func (h *expiryHeap) Pop() any {
	n := len(*h)
	e := (*h)[n-1]
	(*h)[n-1] = nil
	*h = (*h)[:n-1]
	return e
}

// expiryQueue is a min-heap of session ids ordered by expiry, so
// memory.Store can evict stale entries in O(log n) per call instead of
// scanning the whole map.
type expiryQueue struct {
	heap expiryHeap
}

func newExpiryQueue() *expiryQueue {
	q := new(expiryQueue)
	heap.Init(&q.heap)
	return q
}

// Track records that sessionID should be evicted once expires has passed.
func (q *expiryQueue) Track(sessionID string, expires time.Time) {
	heap.Push(&q.heap, &sessionExpiry{expires: expires, sessionID: sessionID})
}

// PopExpired removes and returns, in expiry order, the ids of every entry
// whose expiry is before now.
func (q *expiryQueue) PopExpired(now time.Time) []string {
	var expired []string
	for q.heap.Len() > 0 && q.heap[0].expires.Before(now) {
		item := heap.Pop(&q.heap).(*sessionExpiry)
		expired = append(expired, item.sessionID)
	}
	return expired
}

// Len reports how many ids are still tracked (expired or not).
func (q *expiryQueue) Len() int {
	return q.heap.Len()
}

// Peek returns the session id due to expire soonest, or "" if the queue is
// empty.
func (q *expiryQueue) Peek() string {
	if q.heap.Len() == 0 {
		return ""
	}
	return q.heap[0].sessionID
}
