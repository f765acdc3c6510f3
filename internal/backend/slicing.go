package backend

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// DeriveSliceForLength normalizes slice bounds against a sequence length:
// negative values count from the end, out-of-range values clamp, and the
// result length is derived from the normalized bounds. Step zero is an
// error. Unknown inputs stay Unknown and give an Unknown result length.
func (m *Module) DeriveSliceForLength(start, stop, step, length int) (int, int, int, int, error) {
	if step == 0 {
		return 0, 0, 0, 0, fmt.Errorf("DeriveSliceForLength: slice step cannot be zero")
	}
	if step == buffer.Unknown {
		return 0, 0, 0, 0, fmt.Errorf("DeriveSliceForLength: slice step cannot be unknown")
	}
	if length == buffer.Unknown {
		return start, stop, step, buffer.Unknown, nil
	}
	if start == buffer.Unknown || stop == buffer.Unknown {
		s, e := start, stop
		if s == buffer.Unknown {
			if step > 0 {
				s = 0
			} else {
				s = length - 1
			}
		} else {
			s = clampSliceBound(s, length, step)
		}
		if e == buffer.Unknown {
			if step > 0 {
				e = length
			} else {
				e = -1
			}
		} else {
			e = clampSliceBound(e, length, step)
		}
		return s, e, step, sliceResultLength(s, e, step), nil
	}

	s := clampSliceBound(start, length, step)
	e := clampSliceBound(stop, length, step)
	return s, e, step, sliceResultLength(s, e, step), nil
}

// clampSliceBound resolves one slice bound: negatives count from the end,
// then the value clamps to the valid range for the step direction.
func clampSliceBound(v, length, step int) int {
	if v < 0 {
		v += length
	}
	if step > 0 {
		if v < 0 {
			return 0
		}
		if v > length {
			return length
		}
		return v
	}
	if v < -1 {
		return -1
	}
	if v >= length {
		return length - 1
	}
	return v
}

// sliceResultLength is ceil((stop-start)/step), floored at zero.
func sliceResultLength(start, stop, step int) int {
	var n int
	if step > 0 {
		n = (stop - start + step - 1) / step
	} else {
		n = (start - stop - step - 1) / -step
	}
	if n < 0 {
		return 0
	}
	return n
}

// RegularizeIndexForLength normalizes a single element index: negatives
// count from the end; anything outside [0, length) fails with
// buffer.ErrIndexOutOfRange. An Unknown index against an Unknown length
// passes through.
func (m *Module) RegularizeIndexForLength(index, length int) (int, error) {
	if index == buffer.Unknown && length == buffer.Unknown {
		return buffer.Unknown, nil
	}
	if length == buffer.Unknown {
		return index, nil
	}
	i := index
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, fmt.Errorf("%w: index %d for axis of length %d (valid range [%d, %d))",
			buffer.ErrIndexOutOfRange, index, length, -length, length)
	}
	return i, nil
}
