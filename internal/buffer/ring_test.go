package buffer

import (
	"reflect"
	"testing"
)

func TestNewRingRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewRing[int](capacity); err == nil {
			t.Errorf("NewRing(%d) expected error", capacity)
		}
	}
}

func TestRingFillsToCapacity(t *testing.T) {
	r := MustNewRing[int](3)

	if r.IsFull() {
		t.Fatal("empty ring reports full")
	}
	if _, ok := r.Latest(); ok {
		t.Fatal("empty ring returned a latest item")
	}

	for i := 1; i <= 3; i++ {
		r.Add(i)
	}

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	if !r.IsFull() {
		t.Error("ring should be full after capacity adds")
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("Items() = %v", got)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := MustNewRing[string](3)
	for _, s := range []string{"a", "b", "c", "d"} {
		r.Add(s)
	}

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	if got := r.Items(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("Items() = %v, want [b c d]", got)
	}
	if latest, _ := r.Latest(); latest != "d" {
		t.Errorf("Latest() = %q, want d", latest)
	}
}

func TestRingKeepsLastCapacityItemsInOrder(t *testing.T) {
	const capacity = 5
	r := MustNewRing[int](capacity)
	for i := 0; i < 23; i++ {
		r.Add(i)
		if r.Count() > capacity {
			t.Fatalf("Count() = %d exceeds capacity", r.Count())
		}
	}

	want := []int{18, 19, 20, 21, 22}
	if got := r.Items(); !reflect.DeepEqual(got, want) {
		t.Errorf("Items() = %v, want %v", got, want)
	}
}

func TestRingClear(t *testing.T) {
	r := MustNewRing[int](2)
	r.Add(1)
	r.Add(2)
	r.Add(3)
	r.Clear()

	if r.Count() != 0 || r.IsFull() {
		t.Errorf("after Clear: count=%d full=%v", r.Count(), r.IsFull())
	}
	if len(r.Items()) != 0 {
		t.Errorf("Items() not empty after Clear")
	}

	r.Add(9)
	if got := r.Items(); !reflect.DeepEqual(got, []int{9}) {
		t.Errorf("Items() after reuse = %v", got)
	}
}

func TestRingCapacityOne(t *testing.T) {
	r := MustNewRing[int](1)
	r.Add(1)
	r.Add(2)
	if got := r.Items(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("Items() = %v, want [2]", got)
	}
	if latest, ok := r.Latest(); !ok || latest != 2 {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}
}
