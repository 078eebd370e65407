// Package features turns raw request metadata into the fixed-length numeric
// context vector consumed by the bandit policies.
//
// Extraction is a pure function: the same metadata always produces the same
// vector, no I/O is performed, and no state is shared between calls. Callers
// that receive a *ValidationError must reject the request before any
// selection is attempted.
//
// # Vector Layout
//
// The layout is versioned so checkpointed policy state can detect a
// mismatched feature space after an upgrade. Version 1 is an 8-dimensional
// vector:
//
//	[0] bias term, always 1.0
//	[1] payload size, log-scaled into [0,1]
//	[2] conversation depth, saturating at 32 turns
//	[3] caller-supplied complexity hint in [0,1]
//	[4] caller-supplied priority in [0,1]
//	[5] content type indicator: text
//	[6] content type indicator: code
//	[7] content type indicator: multimodal
//
// Unknown content types leave dimensions 5-7 at zero.
package features
