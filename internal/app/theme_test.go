package app

import (
	"testing"

	"fyne.io/fyne/v2/theme"
	"github.com/stretchr/testify/assert"
)

func TestThemeAccents(t *testing.T) {
	light := NewTheme(false)
	assert.Equal(t, accentOrange, light.Color(theme.ColorNamePrimary, theme.VariantLight))
	assert.Equal(t, theme.DefaultTheme().Color(theme.ColorNameBackground, theme.VariantLight),
		light.Color(theme.ColorNameBackground, theme.VariantLight))

	dark := NewTheme(true)
	assert.Equal(t, canvasDark, dark.Color(theme.ColorNameBackground, theme.VariantLight))
	assert.Equal(t, float32(14), dark.Size(theme.SizeNameScrollBar))
}
