package dispatch

// Operation descriptors cross the dispatch boundary as opaque byte blobs.
// The layout is fixed, little-endian, with no versioning or variable-length
// fields: builder and dispatcher are compiled from this same file, so the
// only guard needed is the exact-size check on unpack. Descriptors are not
// portable across processes and are not meant to be.

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
)

// devicePointerSize is the width of one entry in a device pointer array,
// which sizes the scratch buffers the compiled program must allocate.
const devicePointerSize = int(unsafe.Sizeof(cublas.DevicePtr(0)))

// TrsmBatchedDescriptor parameterizes one batched triangular solve site.
// Read-only after construction.
type TrsmBatchedDescriptor struct {
	ElemType ElementType
	Batch    int32
	M        int32
	N        int32
	Side     cublas.SideMode
	Uplo     cublas.FillMode
	Trans    cublas.Operation
	Diag     cublas.DiagType
}

const trsmDescriptorSize = 32

// Pack serializes the descriptor to its fixed 32-byte layout.
func (d TrsmBatchedDescriptor) Pack() []byte {
	buf := make([]byte, trsmDescriptorSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(d.ElemType))
	le.PutUint32(buf[4:], uint32(d.Batch))
	le.PutUint32(buf[8:], uint32(d.M))
	le.PutUint32(buf[12:], uint32(d.N))
	le.PutUint32(buf[16:], uint32(d.Side))
	le.PutUint32(buf[20:], uint32(d.Uplo))
	le.PutUint32(buf[24:], uint32(d.Trans))
	le.PutUint32(buf[28:], uint32(d.Diag))
	return buf
}

// UnpackTrsmBatchedDescriptor validates and decodes an opaque descriptor.
func UnpackTrsmBatchedDescriptor(opaque []byte) (TrsmBatchedDescriptor, error) {
	var d TrsmBatchedDescriptor
	if len(opaque) != trsmDescriptorSize {
		return d, fmt.Errorf("%w: got %d bytes, want %d", ErrDescriptorSizeMismatch, len(opaque), trsmDescriptorSize)
	}
	le := binary.LittleEndian
	d.ElemType = ElementType(le.Uint32(opaque[0:]))
	d.Batch = int32(le.Uint32(opaque[4:]))
	d.M = int32(le.Uint32(opaque[8:]))
	d.N = int32(le.Uint32(opaque[12:]))
	d.Side = cublas.SideMode(le.Uint32(opaque[16:]))
	d.Uplo = cublas.FillMode(le.Uint32(opaque[20:]))
	d.Trans = cublas.Operation(le.Uint32(opaque[24:]))
	d.Diag = cublas.DiagType(le.Uint32(opaque[28:]))
	if !d.ElemType.valid() {
		return d, fmt.Errorf("%w: tag %d", ErrUnsupportedElementType, int32(d.ElemType))
	}
	return d, nil
}

// GetrfBatchedDescriptor parameterizes one batched LU factorization site.
type GetrfBatchedDescriptor struct {
	ElemType ElementType
	Batch    int32
	N        int32
}

const getrfDescriptorSize = 12

func (d GetrfBatchedDescriptor) Pack() []byte {
	buf := make([]byte, getrfDescriptorSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(d.ElemType))
	le.PutUint32(buf[4:], uint32(d.Batch))
	le.PutUint32(buf[8:], uint32(d.N))
	return buf
}

func UnpackGetrfBatchedDescriptor(opaque []byte) (GetrfBatchedDescriptor, error) {
	var d GetrfBatchedDescriptor
	if len(opaque) != getrfDescriptorSize {
		return d, fmt.Errorf("%w: got %d bytes, want %d", ErrDescriptorSizeMismatch, len(opaque), getrfDescriptorSize)
	}
	le := binary.LittleEndian
	d.ElemType = ElementType(le.Uint32(opaque[0:]))
	d.Batch = int32(le.Uint32(opaque[4:]))
	d.N = int32(le.Uint32(opaque[8:]))
	if !d.ElemType.valid() {
		return d, fmt.Errorf("%w: tag %d", ErrUnsupportedElementType, int32(d.ElemType))
	}
	return d, nil
}

// BuildTrsmBatchedDescriptor is the builder the compiler calls at lowering
// time. It returns the per-operand scratch size in bytes (one device pointer
// per batch element) and the opaque descriptor blob.
func BuildTrsmBatchedDescriptor(tag string, batch, m, n int, leftSide, lower, transA, conjA, unitDiag bool) (int, []byte, error) {
	elem, err := ElementTypeFromTag(tag)
	if err != nil {
		return 0, nil, err
	}
	d := TrsmBatchedDescriptor{
		ElemType: elem,
		Batch:    int32(batch),
		M:        int32(m),
		N:        int32(n),
		Side:     cublas.SideRight,
		Uplo:     cublas.FillUpper,
		Trans:    cublas.OpN,
		Diag:     cublas.DiagNonUnit,
	}
	if leftSide {
		d.Side = cublas.SideLeft
	}
	if lower {
		d.Uplo = cublas.FillLower
	}
	if transA {
		if conjA {
			d.Trans = cublas.OpC
		} else {
			d.Trans = cublas.OpT
		}
	}
	if unitDiag {
		d.Diag = cublas.DiagUnit
	}
	return batch * devicePointerSize, d.Pack(), nil
}

// BuildGetrfBatchedDescriptor returns the scratch size and opaque blob for a
// batched LU factorization site.
func BuildGetrfBatchedDescriptor(tag string, batch, n int) (int, []byte, error) {
	elem, err := ElementTypeFromTag(tag)
	if err != nil {
		return 0, nil, err
	}
	d := GetrfBatchedDescriptor{ElemType: elem, Batch: int32(batch), N: int32(n)}
	return batch * devicePointerSize, d.Pack(), nil
}
