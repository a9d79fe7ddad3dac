package front

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// ErrConditionUnsupported is returned by ConditionEstimate for any scalar
// type gonum's SVD doesn't cover (it only factors float64 matrices).
var ErrConditionUnsupported = errors.New("front: condition estimate only supports real float64 fronts")

// ConditionEstimate reports the pivot block's 2-norm condition number via a
// singular value decomposition, a diagnostic spec.md's numeric layers never
// call during an ordinary solve but that a caller can use to sanity-check a
// near-singular front before trusting its factorization. It only runs on a
// front this process owns outright (a non-distributed supernode materialises
// its whole pivot block locally); a distributed front's pivot block is split
// across the team and has no single-process SVD to take.
//
// gonum's mat.Dense only ever holds float64, so float32/complex64/complex128
// fronts report ErrConditionUnsupported rather than a silently lossy or
// silently real-only answer; float64 is the one case this delegates to
// gonum's SVD outright instead of hand-rolling one.
func ConditionEstimate[T scalar.Numeric](f *Front[T]) (float64, error) {
	if f.IsDistributed() {
		return 0, errors.New("front: condition estimate requires a non-distributed front")
	}
	var zero T
	if !scalar.IsComplex[T]() {
		if _, ok := any(zero).(float64); !ok {
			return 0, ErrConditionUnsupported
		}
	} else {
		return 0, ErrConditionUnsupported
	}

	n := int(f.Size)
	dense := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := any(f.Get(int64(i), int64(j))).(float64)
			dense.Set(i, j, v)
			if i != j {
				dense.Set(j, i, v)
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(dense, mat.SVDNone) {
		return 0, errors.New("front: SVD factorization failed")
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[len(sv)-1] == 0 {
		return 0, errors.New("front: pivot block is singular")
	}
	return sv[0] / sv[len(sv)-1], nil
}
