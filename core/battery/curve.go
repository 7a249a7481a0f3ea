package battery

import "gonum.org/v1/gonum/interp"

// Curve is the normalised open-circuit voltage shape over charge. It is a
// monotone cubic through evenly spaced samples, so it is smooth and never
// decreases between samples.
type Curve struct {
	fit interp.FritschButland
}

// NewCurve fits a curve through points sampled at charge 0, 1/(n-1), ..., 1.
func NewCurve(points []float64) (*Curve, error) {
	if err := validateCurve(points); err != nil {
		return nil, err
	}
	xs := make([]float64, len(points))
	last := float64(len(points) - 1)
	for i := range xs {
		xs[i] = float64(i) / last
	}
	xs[len(xs)-1] = 1
	c := &Curve{}
	if err := c.fit.Fit(xs, points); err != nil {
		return nil, err
	}
	return c, nil
}

// At returns the shape value for the given charge, clamped to [0,1].
func (c *Curve) At(charge float64) float64 {
	if !finite(charge) {
		charge = 0
	}
	return clamp01(c.fit.Predict(clamp01(charge)))
}
