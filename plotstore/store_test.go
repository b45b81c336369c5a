package plotstore

import "testing"

func TestAppendAndSize(t *testing.T) {
	s := New()
	s.Append(7, 2, 1000, 10, 20)
	s.Append(7, 3, 1005, 10, 20)

	if got := s.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}

func TestSortByTimeStableOnDroneID(t *testing.T) {
	s := New()
	s.Append(5, 1, 100, 0, 0)
	s.Append(2, 1, 50, 0, 0)
	s.Append(3, 1, 50, 0, 0)

	s.SortByTime()

	var droneIDs []int32
	s.Iterate(func(it Iterator) bool {
		droneIDs = append(droneIDs, it.Plot().DroneID)
		return true
	})

	want := []int32{2, 3, 5}
	if len(droneIDs) != len(want) {
		t.Fatalf("got %v, want %v", droneIDs, want)
	}
	for i := range want {
		if droneIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", droneIDs, want)
		}
	}
}

func TestEraseReturnsNext(t *testing.T) {
	s := New()
	s.Append(1, 1, 1, 0, 0)
	s.Append(2, 1, 2, 0, 0)
	s.Append(3, 1, 3, 0, 0)

	it := s.Front()
	next := s.Erase(it)
	if !next.Valid() {
		t.Fatalf("expected next iterator to be valid")
	}
	if got := next.Plot().DroneID; got != 2 {
		t.Fatalf("next.Plot().DroneID = %d, want 2", got)
	}
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}
}

func TestPopFrontOnEmptyIsNoop(t *testing.T) {
	s := New()
	s.PopFront()
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", s.Size())
	}
}

func TestRemoveWhere(t *testing.T) {
	s := New()
	s.Append(1, 1, 1, 0, 0)
	s.Append(2, 2, 2, 0, 0)
	s.Append(3, 1, 3, 0, 0)

	s.RemoveWhere(1)

	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}
	s.Iterate(func(it Iterator) bool {
		if it.Plot().NodeID == 1 {
			t.Fatalf("found plot with node_id=1 after RemoveWhere(1)")
		}
		return true
	})
}

func TestClear(t *testing.T) {
	s := New()
	s.Append(1, 1, 1, 0, 0)
	s.Clear()
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", s.Size())
	}
}

func TestFlagBits(t *testing.T) {
	p := Plot{}
	p.SetFlag(NewlyReceived)
	if !p.HasFlag(NewlyReceived) {
		t.Fatalf("expected NewlyReceived to be set")
	}
	p.ClearFlag(NewlyReceived)
	if p.HasFlag(NewlyReceived) {
		t.Fatalf("expected NewlyReceived to be cleared")
	}
}

func TestViewAppendEraseAtomic(t *testing.T) {
	s := New()
	s.Append(1, 1, 1, 0, 0)
	s.Append(2, 1, 2, 0, 0)

	s.View(func(v *View) {
		it := v.Front()
		v.Erase(it)
		v.Append(9, 9, 9, 0, 0)
		v.SortByTime()
		if v.Size() != 2 {
			t.Fatalf("View Size() = %d, want 2", v.Size())
		}
	})

	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}
}
