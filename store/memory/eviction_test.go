package memory

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestExpiryQueueOrdersByExpiry(t *testing.T) {
	now := time.Now()
	type tracked struct {
		id  string
		exp time.Time
	}
	testCases := []struct {
		name      string
		inserts   []tracked
		wantPeek  []string
		wantOrder []string
	}{
		{
			name: "inserted in order",
			inserts: []tracked{
				{id: "sess-a", exp: now.Add(time.Minute)},
				{id: "sess-b", exp: now.Add(2 * time.Minute)},
				{id: "sess-c", exp: now.Add(3 * time.Minute)},
			},
			wantPeek:  []string{"sess-a", "sess-a", "sess-a"},
			wantOrder: []string{"sess-a", "sess-b", "sess-c"},
		},
		{
			name: "inserted out of order",
			inserts: []tracked{
				{id: "sess-b", exp: now.Add(2 * time.Minute)},
				{id: "sess-c", exp: now.Add(3 * time.Minute)},
				{id: "sess-a", exp: now.Add(time.Minute)},
			},
			wantPeek:  []string{"sess-b", "sess-b", "sess-a"},
			wantOrder: []string{"sess-a", "sess-b", "sess-c"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := newExpiryQueue()
			for i, tr := range tc.inserts {
				q.Track(tr.id, tr.exp)
				if got, want := q.Peek(), tc.wantPeek[i]; got != want {
					t.Errorf("Peek() = %q, want %q (insert: %d)", got, want, i)
				}
			}
			var popped []string
			for q.Len() > 0 {
				popped = append(popped, q.PopExpired(now.Add(time.Hour))...)
			}
			if diff := cmp.Diff(tc.wantOrder, popped); diff != "" {
				t.Errorf("PopExpired returned incorrect id sequence (+got, -want):\n%s", diff)
			}
		})
	}
}

func TestPopExpiredOnlyReturnsEntriesBeforeCutoff(t *testing.T) {
	now := time.Now()
	q := newExpiryQueue()
	q.Track("sess-soon", now.Add(time.Minute))
	q.Track("sess-later", now.Add(time.Hour))

	expired := q.PopExpired(now.Add(2 * time.Minute))
	if diff := cmp.Diff([]string{"sess-soon"}, expired); diff != "" {
		t.Errorf("PopExpired returned unexpected ids (+got, -want):\n%s", diff)
	}
	if got, want := q.Len(), 1; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	if got, want := q.Peek(), "sess-later"; got != want {
		t.Errorf("Peek() = %q, want %q", got, want)
	}
}

func TestPeekOnEmptyQueueReturnsEmptyString(t *testing.T) {
	q := newExpiryQueue()
	if got := q.Peek(); got != "" {
		t.Errorf("Peek() on empty queue = %q, want empty string", got)
	}
}
