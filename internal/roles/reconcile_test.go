package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	t.Run("disjoint sets replace everything", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"a", "b"}, []string{"c", "d"})
		assert.Equal(t, []string{"c", "d"}, toAdd)
		assert.Equal(t, []string{"a", "b"}, toRemove)
	})

	t.Run("overlap is untouched", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"a", "b", "c"}, []string{"b", "c", "d"})
		assert.Equal(t, []string{"d"}, toAdd)
		assert.Equal(t, []string{"a"}, toRemove)
	})

	t.Run("identical sets are a no-op", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"a", "b"}, []string{"a", "b"})
		assert.Empty(t, toAdd)
		assert.Empty(t, toRemove)
	})

	t.Run("empty desired removes all", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"a", "b"}, nil)
		assert.Empty(t, toAdd)
		assert.Equal(t, []string{"a", "b"}, toRemove)
	})

	t.Run("empty current adds all", func(t *testing.T) {
		toAdd, toRemove := Reconcile(nil, []string{"a", "b"})
		assert.Equal(t, []string{"a", "b"}, toAdd)
		assert.Empty(t, toRemove)
	})

	t.Run("repeats collapse", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"a", "a"}, []string{"a", "b", "b"})
		assert.Equal(t, []string{"b"}, toAdd)
		assert.Empty(t, toRemove)
	})

	t.Run("comparison is case sensitive", func(t *testing.T) {
		toAdd, toRemove := Reconcile([]string{"Admin"}, []string{"admin"})
		assert.Equal(t, []string{"admin"}, toAdd)
		assert.Equal(t, []string{"Admin"}, toRemove)
	})
}
