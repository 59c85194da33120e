package dispatch

// Status is the caller-allocated out-parameter a dispatch reports through.
// The dispatch boundary sits under a foreign calling convention that cannot
// unwind, so failures are written here instead of returned or panicked.
// A Status never touched by the callee means success.
type Status struct {
	failed  bool
	message string
}

// SetFailure records a failure message. The last write wins; dispatchers
// write at most once.
func (s *Status) SetFailure(message string) {
	s.failed = true
	s.message = message
}

// Failed reports whether the call failed.
func (s *Status) Failed() bool { return s.failed }

// Message returns the failure message, or "" on success.
func (s *Status) Message() string { return s.message }
