package vkng

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTableIssuesNonZeroHandles(t *testing.T) {
	c := qt.New(t)
	var tab table[string]

	a := tab.add("a")
	b := tab.add("b")
	c.Assert(a, qt.Not(qt.Equals), uint64(0))
	c.Assert(b, qt.Not(qt.Equals), a)

	v, ok := tab.get(a)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "a")

	_, ok = tab.get(0)
	c.Assert(ok, qt.IsFalse)

	v, ok = tab.remove(b)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "b")
	_, ok = tab.remove(b)
	c.Assert(ok, qt.IsFalse)
	c.Assert(tab.len(), qt.Equals, 1)
}

func TestTableRemoveIf(t *testing.T) {
	c := qt.New(t)
	var tab table[pooledSet]
	tab.add(pooledSet{pool: 1})
	tab.add(pooledSet{pool: 2})
	kept := tab.add(pooledSet{pool: 2})
	tab.add(pooledSet{pool: 1})

	removed := tab.removeIf(func(s pooledSet) bool { return s.pool == 1 })
	c.Assert(removed, qt.HasLen, 2)
	c.Assert(tab.len(), qt.Equals, 2)
	_, ok := tab.get(kept)
	c.Assert(ok, qt.IsTrue)
}
