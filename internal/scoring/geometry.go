package scoring

import "math"

// Rect is an axis-aligned rectangle. Ground-truth rectangles are normalized to
// [0,1]; user rectangles are in canvas pixels. Both sides of a comparison must
// share one coordinate space.
type Rect struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// Canvas is the pixel size of the drawing surface.
type Canvas struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// RectFromCoords builds a Rect from an [x1, y1, x2, y2] array.
func RectFromCoords(c [4]float64) Rect {
	return Rect{X1: c[0], Y1: c[1], X2: c[2], Y2: c[3]}
}

// Coords returns r as [x1, y1, x2, y2].
func (r Rect) Coords() [4]float64 {
	return [4]float64{r.X1, r.Y1, r.X2, r.Y2}
}

// Canonical orders the corners so that X1 <= X2 and Y1 <= Y2. A box dragged
// from bottom-right to top-left comes in reversed.
func (r Rect) Canonical() Rect {
	return Rect{
		X1: math.Min(r.X1, r.X2),
		Y1: math.Min(r.Y1, r.Y2),
		X2: math.Max(r.X1, r.X2),
		Y2: math.Max(r.Y1, r.Y2),
	}
}

// ToPixels scales a normalized rectangle onto the canvas.
func (r Rect) ToPixels(c Canvas) Rect {
	return Rect{X1: r.X1 * c.Width, Y1: r.Y1 * c.Height, X2: r.X2 * c.Width, Y2: r.Y2 * c.Height}
}

// Normalize maps a pixel rectangle back to [0,1] coordinates. A zero-sized
// canvas yields the zero Rect.
func (r Rect) Normalize(c Canvas) Rect {
	if c.Width <= 0 || c.Height <= 0 {
		return Rect{}
	}
	return Rect{X1: r.X1 / c.Width, Y1: r.Y1 / c.Height, X2: r.X2 / c.Width, Y2: r.Y2 / c.Height}
}

// Area is width*height, or 0 when either is non-positive.
func Area(r Rect) float64 {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 || math.IsNaN(w) || math.IsNaN(h) {
		return 0
	}
	return w * h
}

// IntersectionArea is the overlap area of a and b, never negative.
func IntersectionArea(a, b Rect) float64 {
	return Area(Rect{
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
		X2: math.Min(a.X2, b.X2),
		Y2: math.Min(a.Y2, b.Y2),
	})
}
