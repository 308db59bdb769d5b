package compositor

import (
	"image/color"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/ignore"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
	"github.com/1broseidon/shade/internal/wintype"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gray  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *platform.Headless) {
	t.Helper()
	hb := platform.NewHeadless(100, 100)
	e := New(hb, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e, hb
}

// drain feeds every queued event to the engine.
func drain(t *testing.T, e *Engine, hb *platform.Headless) {
	t.Helper()
	for {
		select {
		case ev := <-hb.Events():
			if err := e.HandleEvent(ev); err != nil {
				t.Fatalf("handle %T: %v", ev, err)
			}
		default:
			return
		}
	}
}

func mapWindow(t *testing.T, e *Engine, hb *platform.Headless, spec platform.WindowSpec) platform.WindowID {
	t.Helper()
	id := hb.CreateWindow(spec)
	hb.MapWindow(id)
	drain(t, e, hb)
	return id
}

func find(t *testing.T, e *Engine, id platform.WindowID) *registry.Window {
	t.Helper()
	w, err := e.Registry().Find(id)
	if err != nil {
		t.Fatalf("find %x: %v", id, err)
	}
	return w
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func TestOpaqueWindowOccludesWindowBelow(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	rb := geom.R(10, 10, 40, 40)
	ra := geom.R(20, 20, 40, 40)
	mapWindow(t, e, hb, platform.WindowSpec{Geometry: rb, Color: red})
	mapWindow(t, e, hb, platform.WindowSpec{Geometry: ra, Color: blue})

	if err := e.PaintAll(geom.NewRegion(ra, rb)); err != nil {
		t.Fatalf("paint: %v", err)
	}

	for _, p := range []struct {
		x, y int
		want color.RGBA
	}{
		{25, 25, blue},
		{49, 49, blue},
		{59, 59, blue},
		{15, 15, red},
		{45, 15, red},
		{15, 45, red},
	} {
		if got := hb.Pixel(p.x, p.y); got != p.want {
			t.Fatalf("pixel %d,%d: got %v want %v", p.x, p.y, got, p.want)
		}
	}
	if !e.PendingDamage().Empty() {
		t.Fatalf("damage should be cleared after a frame")
	}
}

func TestBackgroundFillsUncoveredArea(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(10, 10, 10, 10), Color: red})

	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(5, 5); got != gray {
		t.Fatalf("expected background, got %v", got)
	}
	if got := hb.Pixel(12, 12); got != red {
		t.Fatalf("expected window, got %v", got)
	}

	hb.SetRootBackground(white)
	drain(t, e, hb)
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(5, 5); got != white {
		t.Fatalf("expected new wallpaper, got %v", got)
	}
}

func TestTranslucentWindowBlends(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(0, 0, 50, 50), Color: red})

	id := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(10, 10, 20, 20), Color: blue})
	hb.SetOpacity(id, 0.5)
	hb.MapWindow(id)
	drain(t, e, hb)

	w := find(t, e, id)
	if w.Mode != registry.ModeTranslucent || w.Opacity != 0.5 {
		t.Fatalf("expected translucent at 0.5, got %v at %v", w.Mode, w.Opacity)
	}
	if err := e.PaintAll(geom.Region{}); err != nil {
		t.Fatalf("paint: %v", err)
	}
	got := hb.Pixel(15, 15)
	if !near(got.R, 127) || !near(got.B, 128) || got.G != 0 {
		t.Fatalf("expected an even red/blue blend, got %v", got)
	}
}

func TestFadeInThenOut(t *testing.T) {
	opts := DefaultOptions()
	opts.Fade.Enabled = true
	opts.Fade.InStep = 0.25
	opts.Fade.OutStep = 0.5
	e, hb := newTestEngine(t, opts)

	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(0, 0, 10, 10), Color: red})
	w := find(t, e, id)
	if w.State != registry.StateMapping || w.Opacity != 0 {
		t.Fatalf("expected fade-in from 0, got %v at %v", w.State, w.Opacity)
	}
	if _, ok := e.NextTimeout(); !ok {
		t.Fatalf("expected a tick timeout while fading")
	}

	var values []float64
	for i := 0; i < 4; i++ {
		e.Tick()
		values = append(values, w.Opacity)
	}
	if diff := cmp.Diff([]float64{0.25, 0.5, 0.75, 1}, values); diff != "" {
		t.Fatalf("fade-in mismatch (-want +got):\n%s", diff)
	}
	if w.State != registry.StateMapped || w.Mode != registry.ModeOpaque {
		t.Fatalf("expected steady opaque window, got %v %v", w.State, w.Mode)
	}
	if _, ok := e.NextTimeout(); ok {
		t.Fatalf("no timeout expected once idle")
	}

	hb.UnmapWindow(id)
	drain(t, e, hb)
	if w.State != registry.StateUnmapping {
		t.Fatalf("expected fade-out, got %v", w.State)
	}
	e.Tick()
	e.Tick()
	if w.State != registry.StateUnmapped {
		t.Fatalf("expected unmapped after fade-out, got %v", w.State)
	}
	if e.Registry().Len() != 1 {
		t.Fatalf("unmapped window stays tracked")
	}

	hb.DestroyWindow(id)
	drain(t, e, hb)
	if e.Registry().Len() != 0 {
		t.Fatalf("destroying an unmapped window removes it at once")
	}
}

func TestDestroyFadeReleasesAndIgnoresOwnErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.Fade.Enabled = true
	opts.Fade.InStep = 1
	opts.Fade.OutStep = 0.5
	e, hb := newTestEngine(t, opts)

	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(0, 0, 10, 10), Color: red})
	e.Tick()
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}

	hb.DestroyWindow(id)
	drain(t, e, hb)
	if e.Registry().Len() != 1 {
		t.Fatalf("destroyed window should linger while fading out")
	}
	if _, err := e.Registry().Find(id); err == nil {
		t.Fatalf("destroyed window must not be found by id")
	}
	for i := 0; i < 10 && e.Registry().Len() > 0; i++ {
		e.Tick()
	}
	if e.Registry().Len() != 0 {
		t.Fatalf("window should be removed after its exit fade")
	}

	// The server freed the damage object with the window; the error for
	// our own destroy request must be swallowed.
	drain(t, e, hb)
	st := e.Stats()
	if st.IgnoredErrors != 1 || st.ProtocolErrors != 0 {
		t.Fatalf("expected one ignored error, got %+v", st)
	}
}

func TestLedgerDiscardsRecordedErrors(t *testing.T) {
	e, _ := newTestEngine(t, DefaultOptions())
	e.Ledger().Record(ignore.Picture, 50)

	before := e.Registry().Order()
	if err := e.HandleEvent(platform.ErrorEvent{Header: platform.Header{Sequence: 50}, Class: ignore.Picture, Name: "BadPicture"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := e.HandleEvent(platform.ErrorEvent{Header: platform.Header{Sequence: 60}, Class: ignore.Picture, Name: "BadPicture"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	st := e.Stats()
	if st.IgnoredErrors != 1 || st.ProtocolErrors != 1 {
		t.Fatalf("expected one ignored and one reported error, got %+v", st)
	}
	if diff := cmp.Diff(before, e.Registry().Order()); diff != "" {
		t.Fatalf("errors must not touch the registry (-want +got):\n%s", diff)
	}
}

func TestRegistryFollowsServerStacking(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	var created []platform.WindowID
	for i := 0; i < 5; i++ {
		created = append(created, mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(i*10, 0, 10, 10), Color: red}))
	}

	hb.RestackAbove(created[0], created[3])
	hb.RestackAbove(created[4], 0)
	hb.Raise(created[1])
	hb.Circulate(created[2], platform.PlaceOnBottom)
	drain(t, e, hb)

	stack, _ := hb.Stack()
	want := slices.Clone(stack)
	slices.Reverse(want)
	if diff := cmp.Diff(want, e.Registry().Order()); diff != "" {
		t.Fatalf("stacking mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairAddsExtentsOnlyBeforeFirstPaint(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(10, 10, 50, 50), BorderWidth: 1, Color: red})
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}

	hb.Draw(id, geom.R(5, 5, 10, 10), blue)
	drain(t, e, hb)
	if want := geom.NewRegion(geom.R(16, 16, 10, 10)); !e.PendingDamage().Equal(want) {
		t.Fatalf("expected damage %v, got %v", want, e.PendingDamage())
	}
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(20, 20); got != blue {
		t.Fatalf("expected repaired pixel, got %v", got)
	}

	// Moving the window invalidates its extents; the next damage covers
	// them whole.
	hb.ConfigureWindow(id, geom.R(30, 30, 50, 50), 1)
	drain(t, e, hb)
	want := geom.NewRegion(geom.R(10, 10, 52, 52), geom.R(30, 30, 52, 52))
	if !e.PendingDamage().Equal(want) {
		t.Fatalf("expected old and new extents damaged, got %v", e.PendingDamage())
	}
	if find(t, e, id).DamageSeq != 1 {
		t.Fatalf("expected one damage notification counted")
	}
}

func TestShadowDrawnAroundOpaqueWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.Shadow.Enabled = true
	opts.Shadow.Radius = 2
	opts.Shadow.Opacity = 1
	opts.Shadow.OffsetX = -2
	opts.Shadow.OffsetY = -2
	e, hb := newTestEngine(t, opts)

	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(40, 40, 20, 20), Color: white})
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}

	if got := hb.Pixel(50, 50); got != white {
		t.Fatalf("shadow must not cover the body, got %v", got)
	}
	if got := hb.Pixel(30, 30); got != gray {
		t.Fatalf("expected untouched background, got %v", got)
	}
	if got := hb.Pixel(39, 50); got.R >= gray.R {
		t.Fatalf("expected darkened edge, got %v", got)
	}
	w := find(t, e, id)
	if want := geom.NewRegion(geom.R(38, 38, 24, 24)); !w.Extents.Equal(want) {
		t.Fatalf("expected extents %v, got %v", want, w.Extents)
	}
}

func TestTypeRulesDisableShadow(t *testing.T) {
	opts := DefaultOptions()
	opts.Shadow.Enabled = true
	opts.Types[wintype.Dock] = TypeRule{Opacity: 0.8, Shadow: false, Fade: true}
	e, hb := newTestEngine(t, opts)

	dock := mapWindow(t, e, hb, platform.WindowSpec{
		Geometry: geom.R(0, 0, 100, 10),
		Color:    red,
		Types:    []string{wintype.Dock.Atom()},
	})
	w := find(t, e, dock)
	if w.Type != wintype.Dock || w.Shadow.Enabled || w.Opacity != 0.8 {
		t.Fatalf("dock rule not applied: type=%v shadow=%v opacity=%v", w.Type, w.Shadow.Enabled, w.Opacity)
	}

	normal := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(20, 20, 10, 10), Color: red})
	if n := find(t, e, normal); n.Type != wintype.Normal || !n.Shadow.Enabled {
		t.Fatalf("normal window should default to a shadow, got type=%v shadow=%v", n.Type, n.Shadow.Enabled)
	}

	opts.Shadow.Enabled = false
	e.Reconfigure(opts)
	if find(t, e, normal).Shadow.Enabled {
		t.Fatalf("reconfigure should drop shadows")
	}
}

func TestClientResolutionAndFrameExtents(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	frame := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(10, 10, 40, 40), Color: red})
	client := hb.CreateWindow(platform.WindowSpec{Parent: frame, Geometry: geom.R(2, 20, 36, 18), Client: true})
	hb.SetFrameExtents(client, platform.Extents{Left: 1, Right: 1, Top: 4, Bottom: 1})
	hb.MapWindow(client)
	hb.MapWindow(frame)
	drain(t, e, hb)

	w := find(t, e, frame)
	if w.Client != client {
		t.Fatalf("expected client %x, got %x", client, w.Client)
	}
	if want := geom.NewRegion(geom.R(9, 6, 42, 45)); !e.extentsOf(w).Equal(want) {
		t.Fatalf("expected extents %v, got %v", want, e.extentsOf(w))
	}

	hb.SetOpacity(client, 0.5)
	drain(t, e, hb)
	if w.Opacity != 0.5 {
		t.Fatalf("client opacity should reach the frame, got %v", w.Opacity)
	}
}

func TestOffscreenWindowIsNotPainted(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(200, 200, 10, 10), Color: red})
	if err := e.PaintAll(geom.Region{}); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if w := find(t, e, id); w.Picture != 0 {
		t.Fatalf("offscreen window should not get a picture")
	}
}

func TestInitialScanAdoptsMappedWindows(t *testing.T) {
	hb := platform.NewHeadless(100, 100)
	lower := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(0, 0, 10, 10), Color: red})
	upper := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(5, 5, 10, 10), Color: blue})
	hidden := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(5, 5, 10, 10), Color: blue})
	hb.MapWindow(lower)
	hb.MapWindow(upper)
	for len(hb.Events()) > 0 {
		<-hb.Events()
	}

	e := New(hb, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if diff := cmp.Diff([]platform.WindowID{hidden, upper, lower}, e.Registry().Order()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if find(t, e, upper).State != registry.StateMapped || find(t, e, hidden).State != registry.StateUnmapped {
		t.Fatalf("unexpected initial states")
	}
	if !e.PendingDamage().Equal(geom.NewRegion(geom.R(0, 0, 100, 100))) {
		t.Fatalf("start should damage the whole screen")
	}
}

func TestScreenResizeRepaintsEverything(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	hb.ResizeScreen(120, 80)
	drain(t, e, hb)
	if !e.PendingDamage().Equal(geom.NewRegion(geom.R(0, 0, 120, 80))) {
		t.Fatalf("expected full damage of the new screen, got %v", e.PendingDamage())
	}
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(110, 70); got != gray {
		t.Fatalf("expected background in the grown area, got %v", got)
	}
}

func TestExposeAccumulatesUntilLast(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	hb.Expose(geom.R(0, 0, 5, 5), geom.R(50, 50, 5, 5))
	drain(t, e, hb)
	if want := geom.NewRegion(geom.R(0, 0, 5, 5), geom.R(50, 50, 5, 5)); !e.PendingDamage().Equal(want) {
		t.Fatalf("expected %v, got %v", want, e.PendingDamage())
	}
}

func TestAlphaWindowBlendsAtOpacity(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(0, 0, 50, 50), Color: red})

	// Half-transparent blue, premultiplied, drawn at half opacity.
	id := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(10, 10, 20, 20), HasAlpha: true, Color: color.RGBA{B: 128, A: 128}})
	hb.SetOpacity(id, 0.5)
	hb.MapWindow(id)
	drain(t, e, hb)

	w := find(t, e, id)
	if w.Mode != registry.ModeAlpha || w.Opacity != 0.5 {
		t.Fatalf("expected alpha window at 0.5, got %v at %v", w.Mode, w.Opacity)
	}
	if err := e.PaintAll(geom.Region{}); err != nil {
		t.Fatalf("paint: %v", err)
	}
	got := hb.Pixel(15, 15)
	if !near(got.R, 191) || !near(got.B, 64) || got.G != 0 || got.A != 0xff {
		t.Fatalf("expected a quarter-strength blue over red, got %v", got)
	}
}

func TestDestroyDuringUnmapFade(t *testing.T) {
	opts := DefaultOptions()
	opts.Fade.Enabled = true
	opts.Fade.InStep = 1
	opts.Fade.OutStep = 0.25
	e, hb := newTestEngine(t, opts)

	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(0, 0, 10, 10), Color: red})
	e.Tick()
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}

	hb.UnmapWindow(id)
	drain(t, e, hb)
	e.Tick()
	w := find(t, e, id)
	if w.State != registry.StateUnmapping || w.Opacity != 0.75 {
		t.Fatalf("expected an unmap fade at 0.75, got %v at %v", w.State, w.Opacity)
	}

	hb.DestroyWindow(id)
	drain(t, e, hb)
	if w.State != registry.StateDestroying {
		t.Fatalf("destroy should take over the fade, got %v", w.State)
	}
	if _, err := e.Registry().Find(id); err == nil {
		t.Fatalf("destroyed window must not be found by id")
	}
	for i := 0; i < 10 && e.Registry().Len() > 0; i++ {
		e.Tick()
	}
	if e.Registry().Len() != 0 {
		t.Fatalf("window should be torn down after the fade")
	}

	drain(t, e, hb)
	st := e.Stats()
	if st.IgnoredErrors != 1 || st.ProtocolErrors != 0 {
		t.Fatalf("expected one ignored error, got %+v", st)
	}
}

func TestReparentIntoFrame(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	frame := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(10, 10, 40, 40), Color: red})
	client := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(0, 0, 36, 18), Client: true})
	drain(t, e, hb)
	if e.Registry().Len() != 2 {
		t.Fatalf("expected the new client tracked at the root, got %d windows", e.Registry().Len())
	}

	hb.Reparent(client, frame, 2, 20)
	drain(t, e, hb)
	if _, err := e.Registry().Find(client); err == nil {
		t.Fatalf("a window moved into a frame is no longer top level")
	}
	w := find(t, e, frame)
	if w.Client != client || w.WatchedClient != client {
		t.Fatalf("expected frame to adopt client %x, got client=%x watched=%x", client, w.Client, w.WatchedClient)
	}

	hb.SetFrameExtents(client, platform.Extents{Top: 4})
	drain(t, e, hb)
	if want := geom.NewRegion(geom.R(10, 6, 40, 44)); !e.extentsOf(w).Equal(want) {
		t.Fatalf("expected extents %v, got %v", want, e.extentsOf(w))
	}
}

func TestShapeChangeClipsBody(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(10, 10, 10, 10), Color: red})
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(17, 15); got != red {
		t.Fatalf("expected window, got %v", got)
	}

	hb.SetShape(id, geom.NewRegion(geom.R(0, 0, 5, 10)))
	drain(t, e, hb)
	w := find(t, e, id)
	if want := geom.NewRegion(geom.R(10, 10, 5, 10)); !e.borderShapeOf(w).Equal(want) {
		t.Fatalf("expected shape %v, got %v", want, e.borderShapeOf(w))
	}
	if err := e.Paint(); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if got := hb.Pixel(12, 15); got != red {
		t.Fatalf("expected shaped body, got %v", got)
	}
	if got := hb.Pixel(17, 15); got != gray {
		t.Fatalf("expected background outside the shape, got %v", got)
	}
}

func TestWindowPictureStartsInsideBorder(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	hb.NoNamedPixmaps = true
	id := mapWindow(t, e, hb, platform.WindowSpec{Geometry: geom.R(10, 10, 10, 10), BorderWidth: 2, Color: red})
	if err := e.PaintAll(geom.Region{}); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if w := find(t, e, id); w.Pixmap != 0 || w.Picture == 0 {
		t.Fatalf("expected a picture on the window itself, got pixmap=%x picture=%x", w.Pixmap, w.Picture)
	}
	for _, p := range [][2]int{{12, 12}, {21, 21}} {
		if got := hb.Pixel(p[0], p[1]); got != red {
			t.Fatalf("pixel %d,%d: expected body, got %v", p[0], p[1], got)
		}
	}
}

func TestClientWatchFollowsMapState(t *testing.T) {
	e, hb := newTestEngine(t, DefaultOptions())
	frame := hb.CreateWindow(platform.WindowSpec{Geometry: geom.R(10, 10, 40, 40), Color: red})
	client := hb.CreateWindow(platform.WindowSpec{Parent: frame, Geometry: geom.R(2, 20, 36, 18), Client: true})
	hb.MapWindow(client)
	hb.MapWindow(frame)
	drain(t, e, hb)

	w := find(t, e, frame)
	if w.WatchedClient != client {
		t.Fatalf("expected client %x watched, got %x", client, w.WatchedClient)
	}

	hb.UnmapWindow(frame)
	drain(t, e, hb)
	if w.State != registry.StateUnmapped || w.WatchedClient != 0 {
		t.Fatalf("unmapped frame should stop watching its client, got %v watched=%x", w.State, w.WatchedClient)
	}
	hb.SetOpacity(client, 0.3)
	if n := len(hb.Events()); n != 0 {
		t.Fatalf("expected no property events from an unwatched client, got %d", n)
	}

	hb.MapWindow(frame)
	drain(t, e, hb)
	if w.WatchedClient != client || w.Opacity != 0.3 {
		t.Fatalf("remapped frame should watch its client and read its opacity, got watched=%x opacity=%v", w.WatchedClient, w.Opacity)
	}
	if st := e.Stats(); st.ProtocolErrors != 0 {
		t.Fatalf("unexpected protocol errors: %+v", st)
	}
}
