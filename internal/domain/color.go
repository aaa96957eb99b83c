package domain

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Saturation/lightness are fixed so every account lands on a readable hue.
const (
	colorSaturation = 0.70
	colorLightness  = 0.60
)

// AccountColor derives a stable display color for an account identifier.
// It is a pure function of the identifier: the same account maps to the
// same hue across calls and process restarts, and needs no database lookup.
func AccountColor(accountID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	hue := float64(h.Sum32() % 360)
	r, g, b := hslToRGB(hue, colorSaturation, colorLightness)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return uint8(math.Round((r + m) * 255)),
		uint8(math.Round((g + m) * 255)),
		uint8(math.Round((b + m) * 255))
}
