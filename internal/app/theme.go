package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// Thermal palette accents.
var (
	accentOrange = color.NRGBA{R: 0xE6, G: 0x5C, B: 0x00, A: 0xFF}
	accentAmber  = color.NRGBA{R: 0xFF, G: 0xB3, B: 0x00, A: 0x60}
	canvasDark   = color.NRGBA{R: 0x1B, G: 0x1B, B: 0x1F, A: 0xFF}
)

// Theme keeps the default look with thermal accents. When Dark is set the
// dark variant is always used so false-color frames keep their contrast.
type Theme struct {
	Dark bool
}

var _ fyne.Theme = (*Theme)(nil)

// NewTheme returns the analyzer theme.
func NewTheme(dark bool) *Theme {
	return &Theme{Dark: dark}
}

func (t *Theme) variant(v fyne.ThemeVariant) fyne.ThemeVariant {
	if t.Dark {
		return theme.VariantDark
	}
	return v
}

func (t *Theme) Color(name fyne.ThemeColorName, v fyne.ThemeVariant) color.Color {
	v = t.variant(v)
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return accentOrange
	case theme.ColorNameSelection:
		return accentAmber
	case theme.ColorNameBackground:
		if v == theme.VariantDark {
			return canvasDark
		}
	}
	return theme.DefaultTheme().Color(name, v)
}

func (t *Theme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *Theme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *Theme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameScrollBar {
		return 14
	}
	return theme.DefaultTheme().Size(name)
}
