// Package reduce provides the built-in reduction callbacks consulted
// by the plan lowerer (spec §4.2 step 4) and the external-reduction
// fallback used when a datatype/operator pair has no built-in
// implementation.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package reduce

import (
	"encoding/binary"
	"math"

	"github.com/aistore-labs/ucg/types"
)

// Callback reduces count elements of src into dst in place. Both
// slices must hold at least count * dt.ElementSize() bytes; bytes past
// that are left untouched.
type Callback func(dst, src []byte, count int)

// External is consulted when Choose reports no built-in coverage —
// grounded on ucg_over_ucp_reduce in over_ucp_reduce.c, which falls
// back to the application's registered reduce_cb_f for any datatype
// the built-in table doesn't recognize (non-contiguous buffers,
// custom datatypes, non-commutative user operators).
type External interface {
	Reduce(dst, src []byte, count int, op types.Operator, dt types.DatatypeKind) error
}

// Choose returns a built-in Callback for op/dt, or ok=false if the
// caller must fall back to an External reducer. Mirrors
// ucg_plan_choose_reduction_cb's operator/operand detection, minus the
// location-aware (minloc/maxloc) variants, which this engine doesn't
// support (spec Non-goals).
func Choose(op types.Operator, dt types.DatatypeKind) (cb Callback, ok bool) {
	if op == types.OpNop {
		return nil, false
	}
	switch dt {
	case types.DTUint8, types.DTInt8:
		return chooseWidth1(op, dt == types.DTInt8)
	case types.DTUint16, types.DTInt16:
		return chooseWidth2(op, dt == types.DTInt16)
	case types.DTUint32, types.DTInt32:
		return chooseWidth4(op, dt == types.DTInt32)
	case types.DTUint64, types.DTInt64:
		return chooseWidth8(op, dt == types.DTInt64)
	case types.DTFloat32:
		return chooseFloat32(op)
	case types.DTFloat64:
		return chooseFloat64(op)
	default:
		return nil, false
	}
}

func intOp8(op types.Operator, signed bool) func(a, b uint8) (uint8, bool) {
	s := func(v uint8) int8 { return int8(v) }
	switch op {
	case types.OpSum:
		return func(a, b uint8) (uint8, bool) { return a + b, true }
	case types.OpProd:
		return func(a, b uint8) (uint8, bool) { return a * b, true }
	case types.OpBAnd, types.OpLAnd:
		return func(a, b uint8) (uint8, bool) { return a & b, true }
	case types.OpBOr, types.OpLOr:
		return func(a, b uint8) (uint8, bool) { return a | b, true }
	case types.OpBXor, types.OpLXor:
		return func(a, b uint8) (uint8, bool) { return a ^ b, true }
	case types.OpMax:
		if signed {
			return func(a, b uint8) (uint8, bool) {
				if s(a) > s(b) {
					return a, true
				}
				return b, true
			}
		}
		return func(a, b uint8) (uint8, bool) {
			if a > b {
				return a, true
			}
			return b, true
		}
	case types.OpMin:
		if signed {
			return func(a, b uint8) (uint8, bool) {
				if s(a) < s(b) {
					return a, true
				}
				return b, true
			}
		}
		return func(a, b uint8) (uint8, bool) {
			if a < b {
				return a, true
			}
			return b, true
		}
	default:
		return nil
	}
}

func chooseWidth1(op types.Operator, signed bool) (Callback, bool) {
	f := intOp8(op, signed)
	if f == nil {
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			dst[i], _ = f(dst[i], src[i])
		}
	}, true
}

func chooseWidth2(op types.Operator, signed bool) (Callback, bool) {
	apply := binaryOpUint64(op, signed, 16)
	if apply == nil {
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			off := i * 2
			a := binary.LittleEndian.Uint16(dst[off:])
			b := binary.LittleEndian.Uint16(src[off:])
			r := apply(uint64(a), uint64(b))
			binary.LittleEndian.PutUint16(dst[off:], uint16(r))
		}
	}, true
}

func chooseWidth4(op types.Operator, signed bool) (Callback, bool) {
	apply := binaryOpUint64(op, signed, 32)
	if apply == nil {
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			off := i * 4
			a := binary.LittleEndian.Uint32(dst[off:])
			b := binary.LittleEndian.Uint32(src[off:])
			r := apply(uint64(a), uint64(b))
			binary.LittleEndian.PutUint32(dst[off:], uint32(r))
		}
	}, true
}

func chooseWidth8(op types.Operator, signed bool) (Callback, bool) {
	apply := binaryOpUint64(op, signed, 64)
	if apply == nil {
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			off := i * 8
			a := binary.LittleEndian.Uint64(dst[off:])
			b := binary.LittleEndian.Uint64(src[off:])
			r := apply(a, b)
			binary.LittleEndian.PutUint64(dst[off:], r)
		}
	}, true
}

// binaryOpUint64 returns a reducer over the low `bits` bits of its
// uint64 arguments, signed per `signed` for Max/Min comparisons.
func binaryOpUint64(op types.Operator, signed bool, bits int) func(a, b uint64) uint64 {
	toSigned := func(v uint64) int64 {
		shift := 64 - bits
		return int64(v<<shift) >> shift
	}
	switch op {
	case types.OpSum:
		return func(a, b uint64) uint64 { return a + b }
	case types.OpProd:
		return func(a, b uint64) uint64 { return a * b }
	case types.OpBAnd, types.OpLAnd:
		return func(a, b uint64) uint64 { return a & b }
	case types.OpBOr, types.OpLOr:
		return func(a, b uint64) uint64 { return a | b }
	case types.OpBXor, types.OpLXor:
		return func(a, b uint64) uint64 { return a ^ b }
	case types.OpMax:
		if signed {
			return func(a, b uint64) uint64 {
				if toSigned(a) > toSigned(b) {
					return a
				}
				return b
			}
		}
		return func(a, b uint64) uint64 {
			if a > b {
				return a
			}
			return b
		}
	case types.OpMin:
		if signed {
			return func(a, b uint64) uint64 {
				if toSigned(a) < toSigned(b) {
					return a
				}
				return b
			}
		}
		return func(a, b uint64) uint64 {
			if a < b {
				return a
			}
			return b
		}
	default:
		return nil
	}
}

func chooseFloat32(op types.Operator) (Callback, bool) {
	var apply func(a, b float32) float32
	switch op {
	case types.OpSum:
		apply = func(a, b float32) float32 { return a + b }
	case types.OpProd:
		apply = func(a, b float32) float32 { return a * b }
	case types.OpMax:
		apply = func(a, b float32) float32 {
			if a > b {
				return a
			}
			return b
		}
	case types.OpMin:
		apply = func(a, b float32) float32 {
			if a < b {
				return a
			}
			return b
		}
	default:
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			off := i * 4
			a := math.Float32frombits(binary.LittleEndian.Uint32(dst[off:]))
			b := math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(apply(a, b)))
		}
	}, true
}

func chooseFloat64(op types.Operator) (Callback, bool) {
	var apply func(a, b float64) float64
	switch op {
	case types.OpSum:
		apply = func(a, b float64) float64 { return a + b }
	case types.OpProd:
		apply = func(a, b float64) float64 { return a * b }
	case types.OpMax:
		apply = func(a, b float64) float64 {
			if a > b {
				return a
			}
			return b
		}
	case types.OpMin:
		apply = func(a, b float64) float64 {
			if a < b {
				return a
			}
			return b
		}
	default:
		return nil, false
	}
	return func(dst, src []byte, count int) {
		for i := 0; i < count; i++ {
			off := i * 8
			a := math.Float64frombits(binary.LittleEndian.Uint64(dst[off:]))
			b := math.Float64frombits(binary.LittleEndian.Uint64(src[off:]))
			binary.LittleEndian.PutUint64(dst[off:], math.Float64bits(apply(a, b)))
		}
	}, true
}
