package model

import (
	"fmt"
	"time"
)

// Theme is the color scheme a user selected.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme validates a theme name. The empty string maps to ThemeLight.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case "", ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Preferences are per-user display settings.
//
// BackgroundColor and BackgroundGradient are mutually exclusive.
type Preferences struct {
	UserID             string    `json:"user_id"`
	Theme              Theme     `json:"theme"`
	BackgroundColor    *string   `json:"background_color"`
	BackgroundGradient *string   `json:"background_gradient"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings used before anything is cached or
// persisted.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID, Theme: ThemeLight}
}

// PreferencesUpdate is a partial preferences change.
type PreferencesUpdate struct {
	Theme              *Theme           `json:"theme,omitempty"`
	BackgroundColor    Nullable[string] `json:"background_color,omitzero"`
	BackgroundGradient Nullable[string] `json:"background_gradient,omitzero"`
}

// Apply merges u into p. Setting a background color clears the gradient and
// setting a gradient clears the color.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.Theme != nil {
		p.Theme = *u.Theme
	}
	if u.BackgroundColor.IsSet() {
		p.BackgroundColor = u.BackgroundColor.Ptr()
		if p.BackgroundColor != nil {
			p.BackgroundGradient = nil
		}
	}
	if u.BackgroundGradient.IsSet() {
		p.BackgroundGradient = u.BackgroundGradient.Ptr()
		if p.BackgroundGradient != nil {
			p.BackgroundColor = nil
		}
	}
	if p.Theme == "" {
		p.Theme = ThemeLight
	}
	return p
}
