package models

import "errors"

// Domain errors shared by the confound engine packages. These are wrapped
// with context at the call site, so callers should test with errors.Is.
var (
	// ErrShapeMismatch indicates that array dimensions disagree, such as a
	// mask whose spatial grid does not match a volume, or FD and DVARS
	// series of different lengths.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrEmptySelection indicates that a mask selected zero voxels in a
	// context that requires at least one. This signals an upstream masking
	// failure rather than a legitimate data condition.
	ErrEmptySelection = errors.New("mask selects no voxels")
)
