// Package storetest provides a shared conformance suite for store.Store
// implementations, exercised by each backend's own _test.go file against its
// own fixture-backed instance.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arn-sess/sessguard/store"
)

// Exercise runs the full Store contract against a freshly constructed,
// empty s. Callers typically wrap this in their own Test function, e.g.:
//
//	func TestStore(t *testing.T) {
//	    s := newTestStore(t)
//	    storetest.Exercise(t, s)
//	}
func Exercise(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, ok, err := s.Read(ctx, "missing-id")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "id-1", []byte("payload-1"), time.Minute))
		got, ok, err := s.Read(ctx, "id-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("payload-1"), got)
	})

	t.Run("write overwrites", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "id-2", []byte("first"), time.Minute))
		require.NoError(t, s.Write(ctx, "id-2", []byte("second"), time.Minute))
		got, ok, err := s.Read(ctx, "id-2")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("second"), got)
	})

	t.Run("destroy removes entry", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "id-3", []byte("gone-soon"), time.Minute))
		require.NoError(t, s.Destroy(ctx, "id-3"))
		_, ok, err := s.Read(ctx, "id-3")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("destroy of missing id is a no-op", func(t *testing.T) {
		require.NoError(t, s.Destroy(ctx, "never-existed"))
	})

	t.Run("does not truncate large payloads", func(t *testing.T) {
		big := make([]byte, 64*1024)
		for i := range big {
			big[i] = byte(i)
		}
		require.NoError(t, s.Write(ctx, "id-big", big, time.Minute))
		got, ok, err := s.Read(ctx, "id-big")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, big, got)
	})
}
