package comm

import (
	"encoding/binary"
	"math"

	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// EncodeInts64 and DecodeInts64 are the wire format every distributed
// component uses for index arrays exchanged over AllToAllv: global row
// indices during graph assembly (C1), permutation pairs during distribution
// map inversion/translation (C3), and relative-index scatter lists during
// extend-add (C8). A flat little-endian int64 array keeps every caller free
// of encoding concerns.
func EncodeInts64(v []int64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
	}
	return buf
}

func DecodeInts64(buf []byte) []int64 {
	n := len(buf) / 8
	v := make([]int64, n)
	for i := 0; i < n; i++ {
		v[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}

// EncodeScalars and DecodeScalars carry dense values (matrix entries, front
// blocks, RHS slices) over the same AllToAllv transport, for every scalar
// type the solver is monomorphised over (scalar.Numeric).
func EncodeScalars[T scalar.Numeric](v []T) []byte {
	switch vv := any(v).(type) {
	case []float32:
		buf := make([]byte, 4*len(vv))
		for i, x := range vv {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
		}
		return buf
	case []float64:
		buf := make([]byte, 8*len(vv))
		for i, x := range vv {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
		}
		return buf
	case []complex64:
		buf := make([]byte, 8*len(vv))
		for i, x := range vv {
			binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(real(x)))
			binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(imag(x)))
		}
		return buf
	case []complex128:
		buf := make([]byte, 16*len(vv))
		for i, x := range vv {
			binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(real(x)))
			binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(imag(x)))
		}
		return buf
	default:
		panic("comm: unsupported scalar type in EncodeScalars")
	}
}

func DecodeScalars[T scalar.Numeric](buf []byte) []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		n := len(buf) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return any(out).([]T)
	case float64:
		n := len(buf) / 8
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
		return any(out).([]T)
	case complex64:
		n := len(buf) / 8
		out := make([]complex64, n)
		for i := 0; i < n; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
			out[i] = complex(re, im)
		}
		return any(out).([]T)
	case complex128:
		n := len(buf) / 16
		out := make([]complex128, n)
		for i := 0; i < n; i++ {
			re := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16:]))
			im := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16+8:]))
			out[i] = complex(re, im)
		}
		return any(out).([]T)
	default:
		panic("comm: unsupported scalar type in DecodeScalars")
	}
}
