package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the queue producer and the
// index backends return these (optionally wrapped) so services can translate
// them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists where it must not
// - ErrTagMismatch: conditional write lost against another writer
// - ErrUnavailable: store, broker or index temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrTagMismatch = errors.New("version tag mismatch")
	ErrUnavailable = errors.New("unavailable")
)
