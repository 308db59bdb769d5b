package registry

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/shade/internal/platform"
)

type releaseLog struct {
	released []platform.WindowID
}

func (l *releaseLog) Release(w *Window) {
	l.released = append(l.released, w.ID)
}

func ids(v ...uint32) []platform.WindowID {
	out := make([]platform.WindowID, len(v))
	for i, id := range v {
		out[i] = platform.WindowID(id)
	}
	return out
}

func mustAdd(t *testing.T, r *Registry, id, prev uint32) *Window {
	t.Helper()
	w, err := r.Add(platform.WindowID(id), platform.WindowID(prev))
	if err != nil {
		t.Fatalf("add %d: %v", id, err)
	}
	return w
}

func TestAddLinksAbovePrevious(t *testing.T) {
	r := New()
	mustAdd(t, r, 1, 0)
	mustAdd(t, r, 2, 1)
	mustAdd(t, r, 3, 2)
	mustAdd(t, r, 4, 0)
	mustAdd(t, r, 5, 1)

	if diff := cmp.Diff(ids(4, 3, 2, 5, 1), r.Order()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Add(3, 0); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestRestackMatchesServerOrder(t *testing.T) {
	const n, m = 12, 400
	rng := rand.New(rand.NewSource(11))
	r := New()

	// model is the server's stack, bottom first.
	var model []platform.WindowID
	for i := 1; i <= n; i++ {
		id := platform.WindowID(i)
		var prev platform.WindowID
		if len(model) > 0 {
			prev = model[len(model)-1]
		}
		mustAdd(t, r, uint32(id), uint32(prev))
		model = append(model, id)
	}

	for step := 0; step < m; step++ {
		id := model[rng.Intn(len(model))]
		var above platform.WindowID
		if rng.Intn(5) != 0 {
			above = model[rng.Intn(len(model))]
			if above == id {
				above = 0
			}
		}

		model = slices.DeleteFunc(model, func(x platform.WindowID) bool { return x == id })
		pos := 0
		if above != 0 {
			pos = slices.Index(model, above) + 1
		}
		model = slices.Insert(model, pos, id)

		w, err := r.Find(id)
		if err != nil {
			t.Fatalf("find %d: %v", id, err)
		}
		if err := r.Restack(w, above); err != nil {
			t.Fatalf("restack %d above %d: %v", id, above, err)
		}

		want := slices.Clone(model)
		slices.Reverse(want)
		if diff := cmp.Diff(want, r.Order()); diff != "" {
			t.Fatalf("step %d: restack %d above %d (-want +got):\n%s", step, id, above, diff)
		}
	}
}

func TestRaiseAndLower(t *testing.T) {
	r := New()
	a := mustAdd(t, r, 1, 0)
	mustAdd(t, r, 2, 1)
	c := mustAdd(t, r, 3, 2)

	if err := r.RaiseToTop(a); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := r.LowerToBottom(c); err != nil {
		t.Fatalf("lower: %v", err)
	}
	if diff := cmp.Diff(ids(1, 2, 3), r.Order()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveReleasesAndInvalidatesHandle(t *testing.T) {
	r := New()
	a := mustAdd(t, r, 1, 0)
	mustAdd(t, r, 2, 1)
	h := a.Handle

	log := &releaseLog{}
	if err := r.Remove(a, log); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if diff := cmp.Diff(ids(1), log.released); diff != "" {
		t.Fatalf("release mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Get(h); ok {
		t.Fatalf("stale handle should not resolve")
	}
	if _, err := r.Find(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The freed slot is reused under a new generation.
	b := mustAdd(t, r, 3, 0)
	if b.Handle == h {
		t.Fatalf("reused slot must get a new generation")
	}
	if err := r.Remove(a, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove should fail with ErrNotFound, got %v", err)
	}
}

func TestDestroyedWindowsAreSkipped(t *testing.T) {
	r := New()
	old := mustAdd(t, r, 7, 0)
	r.MarkDestroyed(old)

	if _, err := r.Find(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("destroyed window should not be found, got %v", err)
	}
	// A new window may reuse the id while the old one fades out.
	fresh := mustAdd(t, r, 7, 0)
	if got, _ := r.Find(7); got != fresh {
		t.Fatalf("expected the new window")
	}
	if r.Len() != 2 {
		t.Fatalf("expected both windows linked, got %d", r.Len())
	}
	if err := r.Remove(old, nil); err != nil {
		t.Fatalf("remove old: %v", err)
	}
	if got, _ := r.Find(7); got != fresh {
		t.Fatalf("removing the old window must not untrack the new one")
	}
}

func TestFindTopLevel(t *testing.T) {
	const root = 1
	r := New()
	frame := mustAdd(t, r, 10, 0)
	frame.Client = 12

	parents := map[platform.WindowID]platform.WindowID{12: 11, 11: 10, 10: root, 99: root}
	parent := func(w platform.WindowID) (platform.WindowID, error) {
		p, ok := parents[w]
		if !ok {
			return 0, errors.New("no such window")
		}
		return p, nil
	}

	for _, id := range []platform.WindowID{12, 11, 10} {
		w, err := r.FindTopLevel(id, root, parent)
		if err != nil || w != frame {
			t.Fatalf("resolve %d: got %v, %v", id, w, err)
		}
	}
	if _, err := r.FindTopLevel(99, root, parent); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for untracked tree, got %v", err)
	}
}
