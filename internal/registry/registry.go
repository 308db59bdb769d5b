// Package registry tracks the compositor's windows in stacking order.
//
// Windows live in an arena addressed by generation-checked handles, so
// state that refers to a window (a running fade, a pending action) holds a
// Handle rather than a pointer and simply fails to resolve once the window
// is gone.
package registry

import (
	"errors"
	"fmt"

	"github.com/1broseidon/shade/internal/platform"
)

// ErrNotFound is returned by lookups for identities with no tracked window.
var ErrNotFound = errors.New("window not found")

// ErrExists is returned by Add when a live window already has the id.
var ErrExists = errors.New("window already tracked")

// maxAncestors bounds the parent walk in FindTopLevel.
const maxAncestors = 64

// Handle is a stable reference to a window slot.
type Handle struct {
	index int32
	gen   uint32
}

// Valid reports whether h was ever issued.
func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string { return fmt.Sprintf("#%d.%d", h.index, h.gen) }

// Releaser frees the resources a window owns. Registry.Remove calls it
// before unlinking the window.
type Releaser interface {
	Release(w *Window)
}

// ParentFunc returns the parent of a window.
type ParentFunc func(platform.WindowID) (platform.WindowID, error)

type slot struct {
	win *Window
	gen uint32
}

// Registry is the ordered collection of tracked windows. Order is top
// first, mirroring the stacking order the display server reports.
type Registry struct {
	slots []slot
	free  []int32
	order []Handle
	byID  map[platform.WindowID]Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[platform.WindowID]Handle)}
}

// Add tracks a new window and links it directly above prev, or at the top
// when prev is zero. If prev is not tracked the window goes to the bottom,
// matching where the server placed a window whose sibling we never saw.
func (r *Registry) Add(id, prev platform.WindowID) (*Window, error) {
	if _, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("add 0x%x: %w", uint32(id), ErrExists)
	}

	h := r.alloc()
	w := &Window{ID: id, Handle: h, Opacity: 1, TargetOpacity: 1}
	r.slots[h.index].win = w
	r.byID[id] = h

	pos := 0
	if prev != 0 {
		pos = r.indexOfLive(prev)
		if pos < 0 {
			pos = len(r.order)
		}
	}
	r.insert(pos, h)
	return w, nil
}

// Get resolves a handle. It fails once the window has been removed.
func (r *Registry) Get(h Handle) (*Window, bool) {
	if h.index < 0 || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.index]
	if s.gen != h.gen || s.win == nil {
		return nil, false
	}
	return s.win, true
}

// Find returns the live window with the given id. Destroyed windows that
// are still fading out are not found.
func (r *Registry) Find(id platform.WindowID) (*Window, error) {
	h, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find 0x%x: %w", uint32(id), ErrNotFound)
	}
	w, ok := r.Get(h)
	if !ok {
		return nil, fmt.Errorf("find 0x%x: %w", uint32(id), ErrNotFound)
	}
	return w, nil
}

// FindTopLevel resolves id to the tracked top-level window that owns it:
// either the window whose client is id, or the nearest tracked ancestor
// reached by walking parents up to root.
func (r *Registry) FindTopLevel(id, root platform.WindowID, parent ParentFunc) (*Window, error) {
	for _, h := range r.order {
		w := r.slots[h.index].win
		if !w.Destroyed && w.Client == id {
			return w, nil
		}
	}

	cur := id
	for i := 0; i < maxAncestors && cur != 0 && cur != root; i++ {
		if w, err := r.Find(cur); err == nil {
			return w, nil
		}
		if parent == nil {
			break
		}
		p, err := parent(cur)
		if err != nil {
			break
		}
		cur = p
	}
	return nil, fmt.Errorf("find top-level 0x%x: %w", uint32(id), ErrNotFound)
}

// Restack moves w directly above the live sibling above, or to the bottom
// when above is zero or untracked. The relative order of all other
// windows is unchanged.
func (r *Registry) Restack(w *Window, above platform.WindowID) error {
	i := r.indexOf(w.Handle)
	if i < 0 {
		return fmt.Errorf("restack %s: %w", w, ErrNotFound)
	}
	if above == w.ID {
		return nil
	}
	if i+1 < len(r.order) {
		below := r.slots[r.order[i+1].index].win
		if below.ID == above && !below.Destroyed {
			return nil
		}
	} else if above == 0 {
		return nil
	}

	r.unlink(i)
	pos := len(r.order)
	if above != 0 {
		if j := r.indexOfLive(above); j >= 0 {
			pos = j
		}
	}
	r.insert(pos, w.Handle)
	return nil
}

// RaiseToTop moves w above every other window.
func (r *Registry) RaiseToTop(w *Window) error {
	i := r.indexOf(w.Handle)
	if i < 0 {
		return fmt.Errorf("raise %s: %w", w, ErrNotFound)
	}
	r.unlink(i)
	r.insert(0, w.Handle)
	return nil
}

// LowerToBottom moves w below every other window.
func (r *Registry) LowerToBottom(w *Window) error {
	i := r.indexOf(w.Handle)
	if i < 0 {
		return fmt.Errorf("lower %s: %w", w, ErrNotFound)
	}
	r.unlink(i)
	r.insert(len(r.order), w.Handle)
	return nil
}

// MarkDestroyed flags w as destroyed and frees its id for a new window,
// while keeping w linked until Remove.
func (r *Registry) MarkDestroyed(w *Window) {
	w.Destroyed = true
	if h, ok := r.byID[w.ID]; ok && h == w.Handle {
		delete(r.byID, w.ID)
	}
}

// Remove releases w's resources through rel, then unlinks it. Its handle
// stops resolving.
func (r *Registry) Remove(w *Window, rel Releaser) error {
	i := r.indexOf(w.Handle)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", w, ErrNotFound)
	}
	if rel != nil {
		rel.Release(w)
	}
	r.unlink(i)
	if h, ok := r.byID[w.ID]; ok && h == w.Handle {
		delete(r.byID, w.ID)
	}
	r.slots[w.Handle.index].win = nil
	r.free = append(r.free, w.Handle.index)
	return nil
}

// Len returns the number of tracked windows, destroyed ones included.
func (r *Registry) Len() int { return len(r.order) }

// TopDown calls fn for each window from the top of the stack down until
// fn returns false.
func (r *Registry) TopDown(fn func(*Window) bool) {
	for _, h := range r.order {
		if !fn(r.slots[h.index].win) {
			return
		}
	}
}

// BottomUp calls fn for each window from the bottom of the stack up until
// fn returns false.
func (r *Registry) BottomUp(fn func(*Window) bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		if !fn(r.slots[r.order[i].index].win) {
			return
		}
	}
}

// Windows returns the tracked windows, top first.
func (r *Registry) Windows() []*Window {
	out := make([]*Window, len(r.order))
	for i, h := range r.order {
		out[i] = r.slots[h.index].win
	}
	return out
}

// Order returns the ids of the tracked windows, top first.
func (r *Registry) Order() []platform.WindowID {
	out := make([]platform.WindowID, len(r.order))
	for i, h := range r.order {
		out[i] = r.slots[h.index].win.ID
	}
	return out
}

func (r *Registry) alloc() Handle {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].gen++
		return Handle{index: idx, gen: r.slots[idx].gen}
	}
	r.slots = append(r.slots, slot{gen: 1})
	return Handle{index: int32(len(r.slots) - 1), gen: 1}
}

func (r *Registry) indexOf(h Handle) int {
	for i, o := range r.order {
		if o == h {
			return i
		}
	}
	return -1
}

func (r *Registry) indexOfLive(id platform.WindowID) int {
	for i, h := range r.order {
		w := r.slots[h.index].win
		if w.ID == id && !w.Destroyed {
			return i
		}
	}
	return -1
}

func (r *Registry) insert(pos int, h Handle) {
	r.order = append(r.order, Handle{})
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = h
}

func (r *Registry) unlink(i int) {
	r.order = append(r.order[:i], r.order[i+1:]...)
}
