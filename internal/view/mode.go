// Package view coordinates the views that show a note.
//
// A note can be open in the main editor, in any number of floating windows
// and in separate popup or picture-in-picture windows. Local views are
// Editors over the shared note store, so every view observes the same
// entity. Separate windows are opened through an Opener and sync through
// the remote change stream like any other session.
package view

import "fmt"

// Mode is where a note view is shown.
type Mode string

const (
	ModeMain     Mode = "main"
	ModeFloating Mode = "floating"
	ModePopup    Mode = "popup"
	ModePiP      Mode = "pip"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMain, ModeFloating, ModePopup, ModePiP:
		return m, nil
	}
	return "", fmt.Errorf("unknown view mode %q (want main, floating, popup or pip)", s)
}

// External reports whether the mode lives in another window context.
func (m Mode) External() bool {
	return m == ModePopup || m == ModePiP
}
