// Package fade schedules linear opacity transitions, at most one per
// window, and reports their completion through tagged actions.
package fade

import (
	"math"
	"time"
)

// Action is what to do once a fade reaches its target.
type Action int

const (
	ActionNone Action = iota
	ActionFinishUnmap
	ActionFinishDestroy
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFinishUnmap:
		return "finish-unmap"
	case ActionFinishDestroy:
		return "finish-destroy"
	default:
		return "unknown"
	}
}

// epsilon is the tolerance for treating a fade value as having reached
// its target.
const epsilon = 1e-9

// Target receives fade progress. Apply is called whenever a fade changes
// the value of k; Complete is called exactly once when the fade for k
// finishes, after it has been removed from the scheduler.
type Target[K comparable] interface {
	Apply(k K, value float64)
	Complete(k K, action Action)
}

// Request describes a transition to install with Set.
type Request struct {
	Start  float64
	Finish float64
	// Step is the per-tick change magnitude. Its sign is ignored.
	Step   float64
	Action Action
	// InvokeIfNoop runs Action immediately when Start equals Finish.
	InvokeIfNoop bool
	// Override replaces a fade already running for the same key. Without
	// it, Set leaves the running fade untouched.
	Override bool
}

type fade struct {
	cur    float64
	finish float64
	step   float64
	action Action
}

// Scheduler owns the active fades. It is not safe for concurrent use; the
// compositor drives it from its single event loop.
type Scheduler[K comparable] struct {
	target Target[K]
	fades  map[K]*fade
	order  []K
}

// NewScheduler returns a scheduler reporting to target.
func NewScheduler[K comparable](target Target[K]) *Scheduler[K] {
	return &Scheduler[K]{
		target: target,
		fades:  make(map[K]*fade),
	}
}

// Set installs a fade for k as described by r. It reports whether a fade
// is now running because of this call.
func (s *Scheduler[K]) Set(k K, r Request) bool {
	if _, ok := s.fades[k]; ok {
		if !r.Override {
			return false
		}
		s.remove(k)
	}

	if math.Abs(r.Finish-r.Start) < epsilon {
		if r.InvokeIfNoop {
			s.target.Complete(k, r.Action)
		}
		return false
	}

	step := math.Abs(r.Step)
	if step < epsilon {
		// A zero step would never converge; jump straight to the end.
		s.target.Apply(k, r.Finish)
		s.target.Complete(k, r.Action)
		return false
	}

	s.fades[k] = &fade{cur: r.Start, finish: r.Finish, step: step, action: r.Action}
	s.order = append(s.order, k)
	s.target.Apply(k, r.Start)
	return true
}

// Cancel drops the fade for k without running its action. It reports
// whether a fade existed.
func (s *Scheduler[K]) Cancel(k K) bool {
	if _, ok := s.fades[k]; !ok {
		return false
	}
	s.remove(k)
	return true
}

// Tick advances every active fade by one step. Actions of the fades that
// finish run after all values have been applied. Tick reports whether any
// value changed.
func (s *Scheduler[K]) Tick() bool {
	if len(s.order) == 0 {
		return false
	}

	type done struct {
		key    K
		action Action
	}
	var finished []done
	changed := false

	for _, k := range s.order {
		f := s.fades[k]
		next := f.cur
		if f.finish > f.cur {
			next = math.Min(f.cur+f.step, f.finish)
		} else {
			next = math.Max(f.cur-f.step, f.finish)
		}
		if math.Abs(next-f.finish) < epsilon {
			next = f.finish
		}
		if next != f.cur {
			f.cur = next
			changed = true
			s.target.Apply(k, next)
		}
		if next == f.finish {
			finished = append(finished, done{key: k, action: f.action})
		}
	}

	for _, d := range finished {
		s.remove(d.key)
	}
	for _, d := range finished {
		s.target.Complete(d.key, d.action)
	}
	return changed
}

// NextTimeout returns how long the event loop may sleep before the next
// Tick. ok is false when no fade is active and the loop may block until
// the next external event.
func (s *Scheduler[K]) NextTimeout() (d time.Duration, ok bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	return 0, true
}

// Active reports whether k has a running fade.
func (s *Scheduler[K]) Active(k K) bool {
	_, ok := s.fades[k]
	return ok
}

// Value returns the current value and target of the fade for k.
func (s *Scheduler[K]) Value(k K) (cur, finish float64, ok bool) {
	f, ok := s.fades[k]
	if !ok {
		return 0, 0, false
	}
	return f.cur, f.finish, true
}

// Len returns the number of active fades.
func (s *Scheduler[K]) Len() int { return len(s.order) }

// Remaining returns the largest number of ticks any active fade still
// needs.
func (s *Scheduler[K]) Remaining() int {
	most := 0
	for _, k := range s.order {
		f := s.fades[k]
		n := int(math.Ceil(math.Abs(f.finish-f.cur)/f.step - epsilon))
		most = max(most, n)
	}
	return most
}

func (s *Scheduler[K]) remove(k K) {
	delete(s.fades, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
