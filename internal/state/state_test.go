package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateReturnsRunningSum(t *testing.T) {
	s := New()
	assert.Equal(t, 3, s.Update(3))
	assert.Equal(t, 10, s.Update(7))
	assert.Equal(t, 12, s.Update(2))
	assert.Equal(t, 12, s.Sum())
}

func TestSumOfAppliedRequests(t *testing.T) {
	requests := []int{5, 1, 9, 4, 10}
	s := New()
	total := 0
	for _, r := range requests {
		total += r
		assert.Equal(t, total, s.Update(r))
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("17")
	require.NoError(t, err)
	assert.Equal(t, 17, s.Sum())
	assert.Equal(t, "17", s.String())

	_, err = Parse("not-a-sum")
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	s := New()
	s.Update(41)
	restored, err := Parse(s.String())
	require.NoError(t, err)
	assert.Equal(t, s.Sum(), restored.Sum())
}
