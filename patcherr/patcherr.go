// Package patcherr defines the structured error kinds the patch engine's
// components return, so callers can recover file, digest, and package-key
// context with errors.As instead of parsing messages.
package patcherr

import (
	"fmt"

	"github.com/socket-patch/socket-patch/digest"
)

// ManifestNotFound is returned when the manifest file does not exist at the
// resolved path. Absence of a manifest is a distinct, fatal condition from a
// malformed one.
type ManifestNotFound struct {
	Path string
}

func (e *ManifestNotFound) Error() string {
	return fmt.Sprintf("manifest not found at %s", e.Path)
}

// ManifestInvalid is returned when the manifest file exists but fails
// schema validation: missing fields, malformed UUIDs, or invalid JSON.
type ManifestInvalid struct {
	Path   string
	Reason string
}

func (e *ManifestInvalid) Error() string {
	return fmt.Sprintf("manifest at %s is invalid: %s", e.Path, e.Reason)
}

// BlobUnavailable is returned during Phase 1 planning when a required blob
// cannot be made present (absent locally and the provider could not supply
// it, or no provider is configured).
type BlobUnavailable struct {
	Digest digest.Digest
}

func (e *BlobUnavailable) Error() string {
	return fmt.Sprintf("blob %s unavailable", e.Digest)
}

// IntegrityError is returned when a blob store write, or a file write
// during apply/rollback, re-hashes to something other than the expected
// digest. It is always fatal to the operation in progress and triggers a
// compensating rewind in the apply/rollback engines.
type IntegrityError struct {
	Path     string
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// UnsafeState is returned when a file is missing, or its on-disk contents
// match neither the before nor the after hash recorded for it, so applying
// or rolling back would silently discard a local modification. Status
// names which of the two it was.
type UnsafeState struct {
	Path   string
	Status string
}

func (e *UnsafeState) Error() string {
	return fmt.Sprintf("%s is in an unsafe state (%s): refusing to proceed", e.Path, e.Status)
}

// MissingBeforeBlob is returned when a rollback needs a beforeHash blob
// that is absent from the store and the provider could not supply it
// either (including when running in offline mode).
type MissingBeforeBlob struct {
	Digest digest.Digest
}

func (e *MissingBeforeBlob) Error() string {
	return fmt.Sprintf("rollback needs blob %s, which is unavailable", e.Digest)
}
