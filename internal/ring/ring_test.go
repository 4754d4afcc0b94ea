package ring

import (
	"sync"
	"testing"
)

func TestAppendBelowCapacity(t *testing.T) {
	b := New[int](4)
	b.Append(1)
	b.Append(2)
	b.Append(3)

	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	got := b.Items()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestEvictsOldest(t *testing.T) {
	b := New[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Append(s)
	}

	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	got := b.Items()
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	b.Append(7)
	b.Append(8)
	if b.Cap() != 1 {
		t.Errorf("expected capacity 1, got %d", b.Cap())
	}
	items := b.Items()
	if len(items) != 1 || items[0] != 8 {
		t.Errorf("expected [8], got %v", items)
	}
}

func TestConcurrentAppend(t *testing.T) {
	b := New[int](64)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Append(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != 64 {
		t.Errorf("expected full buffer of 64, got %d", b.Len())
	}
}
