package plotstore

import (
	"container/list"
	"sort"
	"sync"
)

// Iterator is a stable handle onto one element of a Store. It stays valid
// across mutations of other elements, mirroring the std::list iterator the
// reference implementation relies on for in-place mutation and mid-scan
// erase.
type Iterator struct {
	e *list.Element
}

// Valid reports whether the iterator still refers to an element.
func (it Iterator) Valid() bool {
	return it.e != nil
}

// Next returns an iterator to the following element (invalid if it is the
// last one). Safe to call without holding the store's lock once you are
// already inside a View callback.
func (it Iterator) Next() Iterator {
	return Iterator{e: it.e.Next()}
}

// Plot returns the record this iterator points to. Mutating the returned
// pointer mutates the store directly.
func (it Iterator) Plot() *Plot {
	return it.e.Value.(*Plot)
}

// Store is a mutable ordered sequence of plot records. Every mutating
// operation takes the exclusive lock; concurrent iteration without holding
// it is a programmer error.
type Store struct {
	mu   sync.Mutex
	data *list.List
}

// New creates an empty store.
func New() *Store {
	return &Store{data: list.New()}
}

// Append adds a new plot to the end of the store and returns an iterator to
// it. Flags start clear; callers that need NewlyReceived set call SetFlag
// themselves (this mirrors the original's addPlot, which never sets flags).
func (s *Store) Append(droneID, nodeID int32, timestamp int64, lat, lon float32) Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(droneID, nodeID, timestamp, lat, lon)
}

func (s *Store) appendLocked(droneID, nodeID int32, timestamp int64, lat, lon float32) Iterator {
	p := &Plot{DroneID: droneID, NodeID: nodeID, Timestamp: timestamp, Latitude: lat, Longitude: lon}
	e := s.data.PushBack(p)
	return Iterator{e: e}
}

// Erase removes the element the iterator refers to and returns an iterator
// to the next element (or an invalid iterator if it was the last one).
func (s *Store) Erase(it Iterator) Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eraseLocked(it)
}

func (s *Store) eraseLocked(it Iterator) Iterator {
	next := it.e.Next()
	s.data.Remove(it.e)
	return Iterator{e: next}
}

// PopFront removes the first element, if any.
func (s *Store) PopFront() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if front := s.data.Front(); front != nil {
		s.data.Remove(front)
	}
}

// Front returns an iterator to the first element, or an invalid iterator
// if the store is empty.
func (s *Store) Front() Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontLocked()
}

func (s *Store) frontLocked() Iterator {
	return Iterator{e: s.data.Front()}
}

// SortByTime sorts the store by Timestamp ascending, breaking ties by
// DroneID ascending so that output is deterministic given identical input.
func (s *Store) SortByTime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortByTimeLocked()
}

func (s *Store) sortByTimeLocked() {
	plots := make([]*Plot, 0, s.data.Len())
	for e := s.data.Front(); e != nil; e = e.Next() {
		plots = append(plots, e.Value.(*Plot))
	}
	sort.SliceStable(plots, func(i, j int) bool {
		if plots[i].Timestamp != plots[j].Timestamp {
			return plots[i].Timestamp < plots[j].Timestamp
		}
		return plots[i].DroneID < plots[j].DroneID
	})
	s.data.Init()
	for _, p := range plots {
		s.data.PushBack(p)
	}
}

// Clear removes every plot from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Init()
}

// RemoveWhere erases every plot whose NodeID equals nodeID.
func (s *Store) RemoveWhere(nodeID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.data.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*Plot).NodeID == nodeID {
			s.data.Remove(e)
		}
		e = next
	}
}

// Size returns the number of plots currently in the store.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Len()
}

// Iterate calls fn once per plot in order, holding the store's lock for the
// whole traversal. Returning false from fn stops iteration early. fn may
// mutate the plot in place through the pointer it receives but must not
// call back into the Store (the lock is not reentrant) — use View for
// multi-step passes that need to append, sort, and erase together.
func (s *Store) Iterate(fn func(it Iterator) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.data.Front(); e != nil; e = e.Next() {
		if !fn(Iterator{e: e}) {
			return
		}
	}
}

// View holds the store's lock for the duration of fn, handing fn a handle
// with Append, Erase, Front, SortByTime, Size and Each (the counterpart of
// Iterate) that do not re-acquire the lock. The
// reconciliation engine uses this to make a whole discover/translate/
// sort/dedupe pass atomic with respect to concurrent Append calls.
func (s *Store) View(fn func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&View{s: s})
}

// View is the lock-free counterpart of Store, valid only inside a
// Store.View callback.
type View struct {
	s *Store
}

func (v *View) Append(droneID, nodeID int32, timestamp int64, lat, lon float32) Iterator {
	return v.s.appendLocked(droneID, nodeID, timestamp, lat, lon)
}

func (v *View) Erase(it Iterator) Iterator {
	return v.s.eraseLocked(it)
}

func (v *View) Front() Iterator {
	return v.s.frontLocked()
}

func (v *View) SortByTime() {
	v.s.sortByTimeLocked()
}

func (v *View) Size() int {
	return v.s.data.Len()
}

// Each calls fn once per plot currently in the store, in order. Returning
// false stops the traversal early.
func (v *View) Each(fn func(it Iterator) bool) {
	for e := v.s.data.Front(); e != nil; e = e.Next() {
		if !fn(Iterator{e: e}) {
			return
		}
	}
}
