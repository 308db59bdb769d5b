// Package replay drives the compositor on a headless display from a
// scripted trace, so a frame can be reproduced without an X server.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Trace is a screen size and the steps applied to it in order.
type Trace struct {
	Screen Size   `yaml:"screen"`
	Steps  []Step `yaml:"steps"`
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Box is a rectangle in trace files.
type Box struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Step is one scripted action. Exactly one field is set.
type Step struct {
	Create     *CreateStep    `yaml:"create,omitempty"`
	Map        string         `yaml:"map,omitempty"`
	Unmap      string         `yaml:"unmap,omitempty"`
	Destroy    string         `yaml:"destroy,omitempty"`
	Raise      string         `yaml:"raise,omitempty"`
	Lower      string         `yaml:"lower,omitempty"`
	Configure  *ConfigureStep `yaml:"configure,omitempty"`
	Restack    *RestackStep   `yaml:"restack,omitempty"`
	Opacity    *OpacityStep   `yaml:"opacity,omitempty"`
	Draw       *DrawStep      `yaml:"draw,omitempty"`
	Types      *TypesStep     `yaml:"types,omitempty"`
	Background string         `yaml:"background,omitempty"`
	Resize     *Size          `yaml:"resize,omitempty"`
	Expose     []Box          `yaml:"expose,omitempty"`
	Tick       int            `yaml:"tick,omitempty"`
	Repaint    bool           `yaml:"repaint,omitempty"`
}

// CreateStep creates a window named Name.
type CreateStep struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	Box    `yaml:",inline"`
	Border int    `yaml:"border,omitempty"`
	Color  string `yaml:"color"`
	// Client marks the window as a managed client (WM_STATE).
	Client           bool     `yaml:"client,omitempty"`
	OverrideRedirect bool     `yaml:"override_redirect,omitempty"`
	Types            []string `yaml:"types,omitempty"`
}

// ConfigureStep moves or resizes a window.
type ConfigureStep struct {
	Window string `yaml:"window"`
	Box    `yaml:",inline"`
	Border int `yaml:"border,omitempty"`
}

// RestackStep places Window directly above Above, or at the bottom when
// Above is empty.
type RestackStep struct {
	Window string `yaml:"window"`
	Above  string `yaml:"above,omitempty"`
}

// OpacityStep sets the opacity property; a nil Value removes it.
type OpacityStep struct {
	Window string   `yaml:"window"`
	Value  *float64 `yaml:"value"`
}

// DrawStep fills part of a window, producing damage.
type DrawStep struct {
	Window string `yaml:"window"`
	Box    `yaml:",inline"`
	Color  string `yaml:"color"`
}

// TypesStep sets _NET_WM_WINDOW_TYPE.
type TypesStep struct {
	Window string   `yaml:"window"`
	Types  []string `yaml:"values"`
}

// kind names the action of a step, and fails unless exactly one is set.
func (s Step) kind() (string, error) {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(s.Create != nil, "create")
	add(s.Map != "", "map")
	add(s.Unmap != "", "unmap")
	add(s.Destroy != "", "destroy")
	add(s.Raise != "", "raise")
	add(s.Lower != "", "lower")
	add(s.Configure != nil, "configure")
	add(s.Restack != nil, "restack")
	add(s.Opacity != nil, "opacity")
	add(s.Draw != nil, "draw")
	add(s.Types != nil, "types")
	add(s.Background != "", "background")
	add(s.Resize != nil, "resize")
	add(len(s.Expose) > 0, "expose")
	add(s.Tick > 0, "tick")
	add(s.Repaint, "repaint")
	switch len(set) {
	case 0:
		return "", errors.New("step has no action")
	case 1:
		return set[0], nil
	default:
		return "", fmt.Errorf("step has several actions: %v", set)
	}
}

// Parse decodes a trace, rejecting unknown keys.
func Parse(data []byte) (*Trace, error) {
	var t Trace
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if t.Screen.Width <= 0 || t.Screen.Height <= 0 {
		return nil, fmt.Errorf("screen must have a positive size, got %dx%d", t.Screen.Width, t.Screen.Height)
	}
	for i, s := range t.Steps {
		if _, err := s.kind(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &t, nil
}

// Load reads and parses the trace at path.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
