package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStore_RoundTrip covers property 5: write(k,v); read(k) == v for
// any key in isolation.
func TestStore_RoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	s.Init(4)

	want := Record{DataType: DataTypeScalar, Scalar: 42}
	s.Write(Key(2), want, 1)

	got, ok := s.Read(Key(2))
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestStore_ReadMissingKey(t *testing.T) {
	s := NewInMemoryStore()
	_, ok := s.Read(Key(99))
	require.False(t, ok)
}

func TestStore_TimestampAdvancesOnWrite(t *testing.T) {
	s := NewInMemoryStore()
	before := s.Timestamp(Key(0))
	s.Write(Key(0), Record{DataType: DataTypeScalar, Scalar: 1}, 1)
	after := s.Timestamp(Key(0))
	require.Greater(t, after, before)
}
