/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package cache

import "testing"

func keyFor(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func TestInsertAndLookup(t *testing.T) {
	c := New(4)
	k := keyFor(1)
	c.Insert(k, "plan-1", false, nil)

	got, ok := c.Lookup(k)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got != "plan-1" {
		t.Errorf("got %v, want plan-1", got)
	}
}

func TestLookupMiss(t *testing.T) {
	c := New(4)
	if _, ok := c.Lookup(keyFor(9)); ok {
		t.Error("expected a miss on an empty cache")
	}
}

func TestEvictsOldestNonPersistentWhenFull(t *testing.T) {
	c := New(2)
	var evicted []interface{}
	onEvict := func(p interface{}) { evicted = append(evicted, p) }

	c.Insert(keyFor(1), "plan-1", false, onEvict)
	c.Insert(keyFor(2), "plan-2", false, onEvict)
	c.Insert(keyFor(3), "plan-3", false, onEvict)

	if len(evicted) != 1 || evicted[0] != "plan-1" {
		t.Fatalf("expected plan-1 evicted first, got %v", evicted)
	}
	if _, ok := c.Lookup(keyFor(1)); ok {
		t.Error("plan-1 should have been evicted")
	}
	if _, ok := c.Lookup(keyFor(3)); !ok {
		t.Error("plan-3 should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries after eviction, got %d", c.Len())
	}
}

func TestPersistentPlansNeverEvicted(t *testing.T) {
	c := New(1)
	var evicted []interface{}
	onEvict := func(p interface{}) { evicted = append(evicted, p) }

	c.Insert(keyFor(1), "persistent-plan", true, onEvict)
	c.Insert(keyFor(2), "plan-2", false, onEvict)
	c.Insert(keyFor(3), "plan-3", false, onEvict)

	if _, ok := c.Lookup(keyFor(1)); !ok {
		t.Error("persistent plan should never be evicted")
	}
	for _, p := range evicted {
		if p == "persistent-plan" {
			t.Fatal("persistent plan was evicted")
		}
	}
}
