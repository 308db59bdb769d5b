// Package wintype classifies windows by their EWMH _NET_WM_WINDOW_TYPE.
package wintype

import (
	"fmt"
	"strings"
)

// Type is the window-type classification used for per-type rules.
type Type int

const (
	Unknown Type = iota
	Desktop
	Dock
	Toolbar
	Menu
	Utility
	Splash
	Dialog
	Normal
	DropdownMenu
	PopupMenu
	Tooltip
	Notification
	Combo
	DND
	numTypes
)

// Count is the number of distinct types, including Unknown.
const Count = int(numTypes)

var names = [numTypes]string{
	Unknown:      "unknown",
	Desktop:      "desktop",
	Dock:         "dock",
	Toolbar:      "toolbar",
	Menu:         "menu",
	Utility:      "utility",
	Splash:       "splash",
	Dialog:       "dialog",
	Normal:       "normal",
	DropdownMenu: "dropdown_menu",
	PopupMenu:    "popup_menu",
	Tooltip:      "tooltip",
	Notification: "notification",
	Combo:        "combo",
	DND:          "dnd",
}

var atoms = [numTypes]string{
	Desktop:      "_NET_WM_WINDOW_TYPE_DESKTOP",
	Dock:         "_NET_WM_WINDOW_TYPE_DOCK",
	Toolbar:      "_NET_WM_WINDOW_TYPE_TOOLBAR",
	Menu:         "_NET_WM_WINDOW_TYPE_MENU",
	Utility:      "_NET_WM_WINDOW_TYPE_UTILITY",
	Splash:       "_NET_WM_WINDOW_TYPE_SPLASH",
	Dialog:       "_NET_WM_WINDOW_TYPE_DIALOG",
	Normal:       "_NET_WM_WINDOW_TYPE_NORMAL",
	DropdownMenu: "_NET_WM_WINDOW_TYPE_DROPDOWN_MENU",
	PopupMenu:    "_NET_WM_WINDOW_TYPE_POPUP_MENU",
	Tooltip:      "_NET_WM_WINDOW_TYPE_TOOLTIP",
	Notification: "_NET_WM_WINDOW_TYPE_NOTIFICATION",
	Combo:        "_NET_WM_WINDOW_TYPE_COMBO",
	DND:          "_NET_WM_WINDOW_TYPE_DND",
}

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return fmt.Sprintf("wintype(%d)", int(t))
	}
	return names[t]
}

// Atom returns the EWMH atom name for t, or "" for Unknown.
func (t Type) Atom() string {
	if t < 0 || t >= numTypes {
		return ""
	}
	return atoms[t]
}

// All returns every known type except Unknown, in declaration order.
func All() []Type {
	out := make([]Type, 0, Count-1)
	for t := Desktop; t < numTypes; t++ {
		out = append(out, t)
	}
	return out
}

// Parse resolves a config name such as "dropdown_menu". Dashes are
// accepted in place of underscores.
func Parse(name string) (Type, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for t, n := range names {
		if n == key {
			return Type(t), nil
		}
	}
	return Unknown, fmt.Errorf("unknown window type %q", name)
}

// FromAtoms returns the first recognised type in a _NET_WM_WINDOW_TYPE
// value, which lists types in order of preference.
func FromAtoms(values []string) Type {
	for _, v := range values {
		for t, a := range atoms {
			if a != "" && a == v {
				return Type(t)
			}
		}
	}
	return Unknown
}
