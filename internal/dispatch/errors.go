package dispatch

import "errors"

// Every internal step of a dispatch returns one of these error kinds,
// wrapped with context. The first failure aborts the remaining steps;
// at the entry point all kinds collapse into the caller's status object.
var (
	// ErrResourceCreation: creating a library handle failed (driver error
	// or resource exhaustion). Never retried; the caller must observe it.
	ErrResourceCreation = errors.New("handle creation failed")

	// ErrDescriptorSizeMismatch: the opaque descriptor length disagrees
	// with the expected record size.
	ErrDescriptorSizeMismatch = errors.New("descriptor size mismatch")

	// ErrTransfer: an asynchronous copy or pointer staging failed to enqueue.
	ErrTransfer = errors.New("transfer failed")

	// ErrKernelInvocation: the numeric kernel call returned a non-success code.
	ErrKernelInvocation = errors.New("kernel invocation failed")

	// ErrUnsupportedElementType: a type tag does not map to a supported
	// element type.
	ErrUnsupportedElementType = errors.New("unsupported element type")

	// ErrBadBuffers: the positional buffer array or a staging argument does
	// not match the operation's contract.
	ErrBadBuffers = errors.New("bad buffer array")
)
