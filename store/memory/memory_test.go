package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arn-sess/sessguard/store/memory"
	"github.com/arn-sess/sessguard/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Exercise(t, memory.New())
}

func TestStoreEviction(t *testing.T) {
	now := time.Now()
	s := memory.New()
	s.Clock = func() time.Time { return now }

	require.NoError(t, s.Write(context.Background(), "boop", []byte("payload"), time.Hour))

	s.Clock = func() time.Time { return now.Add(90 * time.Minute) }

	_, ok, err := s.Read(context.Background(), "boop")
	require.NoError(t, err)
	require.False(t, ok, "expected evicted entry to read as a miss")
}

func TestStoreEvictionThenRewrite(t *testing.T) {
	now := time.Now()
	s := memory.New()
	s.Clock = func() time.Time { return now }

	require.NoError(t, s.Write(context.Background(), "boop", []byte("first"), time.Hour))
	s.Clock = func() time.Time { return now.Add(90 * time.Minute) }
	require.NoError(t, s.Write(context.Background(), "boop", []byte("second"), time.Hour))

	got, ok, err := s.Read(context.Background(), "boop")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second"), got)
}
