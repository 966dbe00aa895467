// Package field implements the elliptical Gaussian field primitive, the
// layered mixture generator, and grid rendering for the perturbation engine.
package field

import "math"

// Params holds the six free parameters of an elliptical Gaussian blob.
type Params struct {
	CenterX     float64 `json:"centerX"`
	CenterY     float64 `json:"centerY"`
	ScaleX      float64 `json:"scaleX"`
	ScaleY      float64 `json:"scaleY"`
	Correlation float64 `json:"correlation"` // in (-1, 1)
	Amplitude   float64 `json:"amplitude"`   // > 0
}

// Component is one blob of the mixture. The embedded Params are the live
// (possibly perturbed) values; Original is the pristine tuple captured at
// creation and only ever written by an explicit reset.
type Component struct {
	ID int `json:"id"`
	Params
	Band        Band   `json:"band"`
	IsPerturbed bool   `json:"isPerturbed"`
	Original    Params `json:"original"`
}

// Rect is an axis-aligned bounding rectangle in grid coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Bounded is implemented by anything with a sigma-scaled bounding box.
type Bounded interface {
	BoundingBox(sigmaMultiplier float64) Rect
}

// Eval evaluates the Gaussian density at (x, y).
func (p Params) Eval(x, y float64) float64 {
	dx := (x - p.CenterX) / p.ScaleX
	dy := (y - p.CenterY) / p.ScaleY
	rho := p.Correlation
	denom := 1 - rho*rho
	if denom <= 0 {
		return 0
	}
	q := (dx*dx - 2*rho*dx*dy + dy*dy) / denom
	return p.Amplitude * math.Exp(-0.5*q)
}

// BoundingBox returns the n-sigma box of the blob. The marginal deviation
// along each axis equals the axis scale regardless of correlation, so the
// box is symmetric around the center.
func (p Params) BoundingBox(sigmaMultiplier float64) Rect {
	return Rect{
		MinX: p.CenterX - sigmaMultiplier*p.ScaleX,
		MinY: p.CenterY - sigmaMultiplier*p.ScaleY,
		MaxX: p.CenterX + sigmaMultiplier*p.ScaleX,
		MaxY: p.CenterY + sigmaMultiplier*p.ScaleY,
	}
}

// MaxScale returns the larger of the two axis scales, the quantity band
// classification keys on.
func (p Params) MaxScale() float64 {
	return math.Max(p.ScaleX, p.ScaleY)
}

// Reset restores the live parameters from the original snapshot.
func (c *Component) Reset() {
	c.Params = c.Original
	c.IsPerturbed = false
}
