package sim

import "errors"

// Configuration and collaborator errors shared by the generation stages.
// Callers wrap these with context via fmt.Errorf("...: %w", err).
var (
	ErrUnknownSpectrum    = errors.New("unknown spectrum")
	ErrInvalidSpectrum    = errors.New("invalid spectrum")
	ErrFluxTableMissing   = errors.New("flux table required but not loaded")
	ErrInvalidVolume      = errors.New("invalid volume specification")
	ErrUnknownShowerClass = errors.New("unknown shower class")
)
