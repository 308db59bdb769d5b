package shadow

import (
	"fmt"
	"image"
	"math"
)

// Key identifies one rendered mask. Opacity is quantized to an alpha byte
// so windows whose opacities differ by less than one step share a mask.
type Key struct {
	Radius int
	Alpha  uint8
	Width  int
	Height int
}

// KeyFor builds the cache key for a shadow of the given geometry.
func KeyFor(radius int, opacity float64, width, height int) Key {
	return Key{
		Radius: radius,
		Alpha:  uint8(math.Round(clampUnit(opacity) * 255)),
		Width:  width,
		Height: height,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("r%d a%d %dx%d", k.Radius, k.Alpha, k.Width, k.Height)
}

// UploadFunc turns a rendered mask into a backend resource.
type UploadFunc[H any] func(mask *image.Alpha) (H, error)

// ReleaseFunc frees a resource created by an UploadFunc.
type ReleaseFunc[H any] func(H)

type entry[H any] struct {
	handle H
	refs   int
}

// Cache shares uploaded shadow masks between windows of equal size and
// opacity. Entries are reference counted; up to maxIdle unreferenced
// entries are kept around for reuse and the oldest is freed past that.
//
// Cache is not safe for concurrent use.
type Cache[H any] struct {
	upload  UploadFunc[H]
	release ReleaseFunc[H]
	maxIdle int

	kernels map[int]*Kernel
	entries map[Key]*entry[H]
	idle    []Key
}

// NewCache returns an empty cache.
func NewCache[H any](upload UploadFunc[H], release ReleaseFunc[H], maxIdle int) *Cache[H] {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &Cache[H]{
		upload:  upload,
		release: release,
		maxIdle: maxIdle,
		kernels: make(map[int]*Kernel),
		entries: make(map[Key]*entry[H]),
	}
}

// Kernel returns the shared kernel for radius, building it on first use.
func (c *Cache[H]) Kernel(radius int) *Kernel {
	k, ok := c.kernels[radius]
	if !ok {
		k = NewKernel(radius)
		c.kernels[radius] = k
	}
	return k
}

// Acquire returns the resource for key, rendering and uploading the mask
// if no entry exists yet. Every successful Acquire must be paired with a
// Release of the same key.
func (c *Cache[H]) Acquire(key Key) (H, error) {
	if e, ok := c.entries[key]; ok {
		if e.refs == 0 {
			c.dropIdle(key)
		}
		e.refs++
		return e.handle, nil
	}

	mask := c.Kernel(key.Radius).Mask(float64(key.Alpha)/255, key.Width, key.Height)
	h, err := c.upload(mask)
	if err != nil {
		var zero H
		return zero, fmt.Errorf("upload shadow %s: %w", key, err)
	}
	c.entries[key] = &entry[H]{handle: h, refs: 1}
	return h, nil
}

// Release drops one reference to key. Releasing an unknown key is a no-op.
func (c *Cache[H]) Release(key Key) {
	e, ok := c.entries[key]
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	c.idle = append(c.idle, key)
	for len(c.idle) > c.maxIdle {
		oldest := c.idle[0]
		c.idle = c.idle[1:]
		c.evict(oldest)
	}
}

// Purge frees every unreferenced entry and forgets cached kernels. Entries
// still in use stay until their last Release.
func (c *Cache[H]) Purge() {
	for _, key := range c.idle {
		c.evict(key)
	}
	c.idle = nil
	c.kernels = make(map[int]*Kernel)
}

// Len returns the number of live entries, referenced or idle.
func (c *Cache[H]) Len() int { return len(c.entries) }

// Refs returns the reference count of key.
func (c *Cache[H]) Refs(key Key) int {
	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}

func (c *Cache[H]) evict(key Key) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	if c.release != nil {
		c.release(e.handle)
	}
}

func (c *Cache[H]) dropIdle(key Key) {
	for i, k := range c.idle {
		if k == key {
			c.idle = append(c.idle[:i], c.idle[i+1:]...)
			return
		}
	}
}
