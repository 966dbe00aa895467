// Package metrics implements the structural similarity and divergence
// measures used as the search objective. Both treat a field as a flat
// scalar array; callers guarantee matching dimensions or get an error.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrDimensionMismatch is returned when two fields differ in length.
// Fatal to the call; never retried internally.
var ErrDimensionMismatch = errors.New("metrics: field dimensions do not match")

// Similarity stabilization factors relative to the dynamic range L:
// c1 = (k1*L)^2, c2 = (k2*L)^2.
const (
	k1 = 0.01
	k2 = 0.03
)

// divergenceEpsilon regularizes the mass distributions before
// normalization so empty pixels do not produce infinite ratios.
const divergenceEpsilon = 1e-10

// Similarity computes the global-window structural similarity of two
// fields. The dynamic range is the maximum over both fields; two
// identically zero fields are defined to have similarity 1.
func Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 1, nil
	}

	var dynRange float64
	for i := range a {
		if a[i] > dynRange {
			dynRange = a[i]
		}
		if b[i] > dynRange {
			dynRange = b[i]
		}
	}
	// Zero dynamic range: both fields identically zero.
	if dynRange == 0 {
		return 1, nil
	}

	c1 := (k1 * dynRange) * (k1 * dynRange)
	c2 := (k2 * dynRange) * (k2 * dynRange)

	m1 := stat.Mean(a, nil)
	m2 := stat.Mean(b, nil)
	v1 := stat.Variance(a, nil)
	v2 := stat.Variance(b, nil)
	cov := stat.Covariance(a, b, nil)

	num := (2*m1*m2 + c1) * (2*cov + c2)
	den := (m1*m1 + m2*m2 + c1) * (v1 + v2 + c2)
	return num / den, nil
}

// Divergence computes a KL-style divergence between two unnormalized
// non-negative mass fields. Each field is epsilon-regularized and
// normalized to unit mass first. A field with zero raw mass yields a
// defined divergence of 0.
func Divergence(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(p), len(q))
	}
	if len(p) == 0 {
		return 0, nil
	}

	var sumP, sumQ float64
	for i := range p {
		sumP += p[i]
		sumQ += q[i]
	}
	if sumP == 0 || sumQ == 0 {
		return 0, nil
	}

	n := float64(len(p))
	normP := sumP + divergenceEpsilon*n
	normQ := sumQ + divergenceEpsilon*n

	var d float64
	for i := range p {
		pi := (p[i] + divergenceEpsilon) / normP
		qi := (q[i] + divergenceEpsilon) / normQ
		d += pi * math.Log(pi/qi)
	}
	return d, nil
}
