package dispatch

import "fmt"

// ElementType is the closed set of element types the batched kernels support.
// It selects both the element byte width and the typed kernel variant.
type ElementType int32

const (
	F32 ElementType = iota
	F64
	C64
	C128
)

// Size returns the element width in bytes.
func (t ElementType) Size() int {
	switch t {
	case F32:
		return 4
	case F64:
		return 8
	case C64:
		return 8
	case C128:
		return 16
	}
	return 0
}

func (t ElementType) String() string {
	switch t {
	case F32:
		return "float32"
	case F64:
		return "float64"
	case C64:
		return "complex64"
	case C128:
		return "complex128"
	}
	return fmt.Sprintf("ElementType(%d)", int32(t))
}

func (t ElementType) valid() bool {
	return t >= F32 && t <= C128
}

// ElementTypeFromTag maps a caller-supplied dtype tag to an ElementType.
// Unsupported tags (e.g. "float16") fail before any device work happens.
func ElementTypeFromTag(tag string) (ElementType, error) {
	switch tag {
	case "float32":
		return F32, nil
	case "float64":
		return F64, nil
	case "complex64":
		return C64, nil
	case "complex128":
		return C128, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedElementType, tag)
}
