package cache

import (
	"sync"
	"testing"
)

type entity struct {
	id   int64
	name string
}

func TestGetOrFetchCachesInstance(t *testing.T) {
	var c Cache[entity]
	fetches := 0

	fetch := func() (*entity, error) {
		fetches++
		return &entity{id: 1, name: "first"}, nil
	}

	a, err := c.GetOrFetch(1, fetch)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.GetOrFetch(1, fetch)
	if err != nil {
		t.Fatal(err)
	}

	if a != b {
		t.Error("two fetches of the same id returned different instances")
	}
	if fetches != 1 {
		t.Errorf("expected 1 materialization, got %d", fetches)
	}
}

func TestEvictedEntryDoesNotResurrect(t *testing.T) {
	var c Cache[entity]

	a, _ := c.GetOrFetch(1, func() (*entity, error) {
		return &entity{id: 1, name: "old"}, nil
	})
	c.Evict(1)

	b, _ := c.GetOrFetch(1, func() (*entity, error) {
		return &entity{id: 1, name: "new"}, nil
	})
	if a == b {
		t.Error("evicted entity resurrected into the cache")
	}
	if b.name != "new" {
		t.Errorf("expected fresh materialization, got %q", b.name)
	}
}

func TestNilFromFetchIsNotCached(t *testing.T) {
	var c Cache[entity]

	v, err := c.GetOrFetch(7, func() (*entity, error) { return nil, nil })
	if err != nil || v != nil {
		t.Fatalf("expected nil, nil; got %v, %v", v, err)
	}
	if c.Size() != 0 {
		t.Errorf("nil entity was cached")
	}
}

func TestClear(t *testing.T) {
	var c Cache[entity]
	keep, _ := c.GetOrFetch(1, func() (*entity, error) { return &entity{id: 1}, nil })
	c.Clear()
	if c.Size() != 0 {
		t.Error("clear left entries behind")
	}
	fresh, _ := c.GetOrFetch(1, func() (*entity, error) { return &entity{id: 1}, nil })
	if keep == fresh {
		t.Error("clear did not drop the old instance")
	}
}

func TestConcurrentFetchesShareOneInstance(t *testing.T) {
	var c Cache[entity]
	var wg sync.WaitGroup
	results := make([]*entity, 32)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch(42, func() (*entity, error) {
				return &entity{id: 42}, nil
			})
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent fetches returned different instances")
		}
	}
}
