package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddKeepsArrivalOrder(t *testing.T) {
	l := NewList()
	l.Add("lfd1")
	l.Add("lfd2")
	l.Add("lfd3")
	assert.Equal(t, []string{"lfd1", "lfd2", "lfd3"}, l.All())
	assert.Equal(t, 3, l.Len())
}

func TestAddAllowsDuplicates(t *testing.T) {
	l := NewList()
	l.Add("lfd1")
	l.Add("lfd1")
	assert.Equal(t, []string{"lfd1", "lfd1"}, l.All())

	assert.True(t, l.Remove("lfd1"))
	assert.True(t, l.Contains("lfd1"))
	assert.True(t, l.Remove("lfd1"))
	assert.False(t, l.Contains("lfd1"))
}

func TestRemoveMissing(t *testing.T) {
	l := NewList()
	l.Add("lfd1")
	assert.False(t, l.Remove("lfd2"))
	assert.Equal(t, []string{"lfd1"}, l.All())
}

func TestClear(t *testing.T) {
	l := NewList()
	l.Add("lfd1")
	l.Add("lfd2")
	assert.Equal(t, []string{"lfd1", "lfd2"}, l.Clear())
	assert.Zero(t, l.Len())
	assert.Empty(t, l.All())
}
