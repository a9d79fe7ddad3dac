// Package scalar bundles the four numeric types the solver is polymorphic
// over (real32, real64, complex64, complex128) with the handful of
// operations the symbolic and numeric layers need that Go's built-in
// arithmetic does not give uniformly across those types: a real-type
// projection and a conjugation.
//
// Every other package in this module is written against the Numeric
// constraint rather than against float64/complex128 directly, and
// monomorphises at the call site exactly the way the teacher's Element type
// carried a Real/Imag pair through every kernel.
package scalar

import (
	"math/cmplx"

	"golang.org/x/exp/constraints"
)

// Numeric is the set of scalar types the solver factors and solves over.
type Numeric interface {
	float32 | float64 | complex64 | complex128
}

// Real is the real-type projection of a Numeric type: float32 stays
// float32, complex64 projects to float32, and so on.
type Real interface {
	float32 | float64
}

// Conjugate returns conj(x) for complex types and x unchanged for real
// types. The conjugation flag from spec.md §4.6/§4.7 selects between calling
// this and not calling it; real callers never need a type switch.
func Conjugate[T Numeric](x T) T {
	switch v := any(x).(type) {
	case complex64:
		return any(complex64(cmplx.Conj(complex128(v)))).(T)
	case complex128:
		return any(cmplx.Conj(v)).(T)
	default:
		return x
	}
}

// Abs1 returns |Re(x)| + |Im(x)|, the 1-norm magnitude the teacher's
// Markowitz pivot search (elementMag in edp1096-sparse/calc.go) used to rank
// candidate pivots. Used unchanged here to rank dense pivots within a front.
func Abs1[T Numeric](x T) float64 {
	switch v := any(x).(type) {
	case float32:
		return absf(float64(v))
	case float64:
		return absf(v)
	case complex64:
		c := complex128(v)
		return absf(real(c)) + absf(imag(c))
	case complex128:
		return absf(real(v)) + absf(imag(v))
	default:
		return 0
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// IsComplex reports whether T is one of the two complex scalar types; it is
// the runtime equivalent of the Matrix.Complex flag the teacher carried on
// every Matrix value (edp1096-sparse/model.go).
func IsComplex[T Numeric]() bool {
	var zero T
	switch any(zero).(type) {
	case complex64, complex128:
		return true
	default:
		return false
	}
}

// Min is the generic helper the teacher already pulled in x/exp/constraints
// for (edp1096-sparse/utils.go); kept for the same family of integer/size
// bookkeeping used throughout the symbolic and distribution-map layers.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max is Min's complement, used by the same bookkeeping code.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
