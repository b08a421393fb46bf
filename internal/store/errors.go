package store

import "errors"

// Sentinel errors matching the taxonomy in spec.md §7. Callers use errors.Is.
var (
	// ErrNotFound indicates a referenced row is missing.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict indicates a uniqueness or concurrent-update conflict.
	ErrConflict = errors.New("store: conflict")
	// ErrIllegalTransition indicates a status-machine violation.
	ErrIllegalTransition = errors.New("store: illegal transition")
	// ErrValidation indicates an input failed a static contract check.
	ErrValidation = errors.New("store: validation error")

	// ErrNameConflict is returned by CreateProject when (name) already exists.
	ErrNameConflict = errors.New("store: project name conflict")
	// ErrConflictingOptions is returned when a caller sends mutually exclusive options.
	ErrConflictingOptions = errors.New("store: conflicting options")
	// ErrDuplicateProtocol is returned by CreateProtocolRun for a duplicate (project_id, protocol_name).
	ErrDuplicateProtocol = errors.New("store: duplicate protocol")
	// ErrDuplicateStep is returned by CreateStepRun for a duplicate index or name.
	ErrDuplicateStep = errors.New("store: duplicate step")
)
