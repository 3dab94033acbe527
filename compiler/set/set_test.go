package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBits(t *testing.T) {
	s := MakeBits[int]()

	s.Set(1)
	s.Set(64)
	s.Set(200)

	assert.True(t, s.IsSet(1))
	assert.True(t, s.IsSet(64))
	assert.True(t, s.IsSet(200))
	assert.False(t, s.IsSet(2))
	assert.False(t, s.IsSet(1000))
	assert.Equal(t, 3, s.Size())

	var got []int

	s.Range(func(k int) bool {
		got = append(got, k)
		return true
	})

	require.Equal(t, []int{1, 64, 200}, got)

	s.Clear(64)
	assert.False(t, s.IsSet(64))

	assert.True(t, s.TestAndSet(1))
	assert.False(t, s.TestAndSet(5))
	assert.True(t, s.IsSet(5))
}

func TestBitsZeroValue(t *testing.T) {
	var s Bits[int32]

	assert.False(t, s.IsSet(7))

	s.Set(7)
	assert.True(t, s.IsSet(7))
	assert.Equal(t, 1, s.Size())
}
