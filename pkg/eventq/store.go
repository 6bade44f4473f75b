package eventq

import (
	"container/list"
	"time"
)

// orderedStore is the single pending sequence shared by all keys.
// Per-key relative order never changes after insertion. Not safe for
// concurrent use; the owning Queue serializes access.
type orderedStore[T any] struct {
	items  *list.List     // of *JobWrapper[T]
	perKey map[string]int // pending count per key
}

func newOrderedStore[T any]() *orderedStore[T] {
	return &orderedStore[T]{
		items:  list.New(),
		perKey: make(map[string]int),
	}
}

// pushBack appends w at the tail.
func (s *orderedStore[T]) pushBack(w *JobWrapper[T]) {
	s.items.PushBack(w)
	s.perKey[w.Key]++
}

// pushFront inserts w ahead of everything else.
func (s *orderedStore[T]) pushFront(w *JobWrapper[T]) {
	s.items.PushFront(w)
	s.perKey[w.Key]++
}

func (s *orderedStore[T]) remove(e *list.Element) *JobWrapper[T] {
	w := s.items.Remove(e).(*JobWrapper[T])
	if n := s.perKey[w.Key] - 1; n > 0 {
		s.perKey[w.Key] = n
	} else {
		delete(s.perKey, w.Key)
	}
	return w
}

// popFront removes and returns the head, or nil when empty.
func (s *orderedStore[T]) popFront() *JobWrapper[T] {
	e := s.items.Front()
	if e == nil {
		return nil
	}
	return s.remove(e)
}

// first returns the earliest wrapper for key without removing it.
func (s *orderedStore[T]) first(key string) *JobWrapper[T] {
	if s.perKey[key] == 0 {
		return nil
	}
	for e := s.items.Front(); e != nil; e = e.Next() {
		if w := e.Value.(*JobWrapper[T]); w.Key == key {
			return w
		}
	}
	return nil
}

// removeKey drops every pending wrapper for key and returns how many
// were removed.
func (s *orderedStore[T]) removeKey(key string) int {
	if s.perKey[key] == 0 {
		return 0
	}
	removed := 0
	for e := s.items.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*JobWrapper[T]).Key == key {
			s.remove(e)
			removed++
		}
		e = next
	}
	return removed
}

// takeEligible splices out the earliest wrapper whose key is not busy and
// whose earliest pending wrapper is ready at now. A key whose head is
// skipped stays blocked for the rest of the scan so a later wrapper for
// the same key can never overtake it.
//
// When nothing is eligible, wake reports the earliest NotBefore among
// blocked heads (zero if none), so the caller can arm a timer.
func (s *orderedStore[T]) takeEligible(busy lockTable, now time.Time) (w *JobWrapper[T], wake time.Time) {
	var passed map[string]struct{}
	for e := s.items.Front(); e != nil; e = e.Next() {
		cand := e.Value.(*JobWrapper[T])
		if busy.has(cand.Key) {
			continue
		}
		if _, skip := passed[cand.Key]; skip {
			continue
		}
		if cand.NotBefore.After(now) {
			if wake.IsZero() || cand.NotBefore.Before(wake) {
				wake = cand.NotBefore
			}
			if passed == nil {
				passed = make(map[string]struct{})
			}
			passed[cand.Key] = struct{}{}
			continue
		}
		return s.remove(e), time.Time{}
	}
	return nil, wake
}

func (s *orderedStore[T]) len() int {
	return s.items.Len()
}

func (s *orderedStore[T]) hasKey(key string) bool {
	return s.perKey[key] > 0
}

// lockTable is the set of keys with a dispatch in flight.
type lockTable map[string]struct{}

func (l lockTable) has(key string) bool {
	_, ok := l[key]
	return ok
}

func (l lockTable) lock(key string)   { l[key] = struct{}{} }
func (l lockTable) unlock(key string) { delete(l, key) }

// waiterTable holds the channels of callers blocked in WaitEmpty, per key.
// Every waiter for a key is released together.
type waiterTable map[string][]chan struct{}

func (wt waiterTable) add(key string) chan struct{} {
	ch := make(chan struct{})
	wt[key] = append(wt[key], ch)
	return ch
}

// release closes and forgets every waiter registered for key.
func (wt waiterTable) release(key string) {
	for _, ch := range wt[key] {
		close(ch)
	}
	delete(wt, key)
}

// forget removes a single waiter that gave up before being released.
func (wt waiterTable) forget(key string, ch chan struct{}) {
	chans := wt[key]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(wt, key)
		return
	}
	wt[key] = chans
}
