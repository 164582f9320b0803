package domain

import "errors"

// ErrInvalidTheme is returned for theme modes other than light and dark.
var ErrInvalidTheme = errors.New("invalid theme")

// Theme is the persisted UI color mode.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known mode.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggled returns the opposite mode.
func (t Theme) Toggled() Theme {
	if t == ThemeDark {
		return ThemeLight
	}

	return ThemeDark
}
