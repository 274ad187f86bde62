// Package domain contains the core value types and pure functions of ticksync.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (HTTP, file system, logging) and contains only the
// tick/word arithmetic and the invariants the rest of the module relies on.
//
// # Types
//
//   - [WordIndex]: compressed address of one 256-bucket bitmap word
//   - [WordInterval]: closed range of word indices derived from a tick range
//   - [BatchPolicy]: bounds on a single batch and on a pacing group
//   - [Batch]: one contiguous fetch request
//   - [Words]: fetched bitmap words keyed by index
//
// # Design Principles
//
// Domain values are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Validated at the boundary, never clamped silently
package domain
