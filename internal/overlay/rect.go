// Package overlay converts normalized suggestion regions into coordinates a
// renderer can place over the displayed image.
package overlay

import (
	"image"
	"math"
)

// Region is a normalized rectangle: X, Y, W and H are fractions of the image
// width/height in [0,1].
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PercentRect is a container-relative box in percent (0..100), matching CSS
// left/top/width/height.
type PercentRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clamp returns r limited to the unit square. Negative sizes collapse to zero
// and a box that starts inside the square is cut at its far edge.
func (r Region) Clamp() Region {
	x := clamp01(r.X)
	y := clamp01(r.Y)
	w := math.Min(clamp01(r.W), 1-x)
	h := math.Min(clamp01(r.H), 1-y)
	return Region{X: x, Y: y, W: w, H: h}
}

// Empty reports whether the clamped region has no area.
func (r Region) Empty() bool {
	c := r.Clamp()
	return c.W == 0 || c.H == 0
}

// ToPercent maps a normalized region to a container-relative percentage box.
func ToPercent(r Region) PercentRect {
	c := r.Clamp()
	return PercentRect{
		Left:   round2(c.X * 100),
		Top:    round2(c.Y * 100),
		Width:  round2(c.W * 100),
		Height: round2(c.H * 100),
	}
}

// ToPixels maps a normalized region onto an image of the given natural size.
func ToPixels(r Region, width, height int) image.Rectangle {
	c := r.Clamp()
	x0 := int(math.Round(c.X * float64(width)))
	y0 := int(math.Round(c.Y * float64(height)))
	x1 := int(math.Round((c.X + c.W) * float64(width)))
	y1 := int(math.Round((c.Y + c.H) * float64(height)))
	return image.Rect(x0, y0, x1, y1)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
