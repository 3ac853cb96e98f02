/*
   Copyright The hacfs Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package errdefs defines the common errors used throughout hacfs packages.
//
// Use with fmt.Errorf to add context to an error, preserving the kind for
// errors.Is checks:
//
//	fmt.Errorf("section %d: %w", index, errdefs.ErrIntegrityViolation)
//
// Packages should return errors of these kinds so that callers can branch
// on the failure class without matching message strings.
package errdefs

import "errors"

var (
	// ErrOutOfBounds is returned when a read range exceeds the length of
	// the addressed source. The request was well-formed but unsatisfiable;
	// the caller may retry with an adjusted range.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrInvalidKeyLength is returned at construction time when key
	// material does not match the width the cipher mode expects.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrUnknownKeyGeneration is returned when a container names a key
	// generation the loaded key tables do not cover.
	ErrUnknownKeyGeneration = errors.New("unknown key generation")

	// ErrMissingKey is returned when a required key (header key, title
	// key) is absent from the key set.
	ErrMissingKey = errors.New("missing key")

	// ErrIntegrityViolation is returned when a block fails hash
	// verification. The corrupted bytes are never handed to the caller.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrMalformedPartitionTable is returned when a flat partition image
	// declares inconsistent counts, offsets or names.
	ErrMalformedPartitionTable = errors.New("malformed partition table")

	// ErrMalformedFilesystemTree is returned when a directory-tree image
	// contains dangling, cyclic or out-of-range entries.
	ErrMalformedFilesystemTree = errors.New("malformed filesystem tree")

	// ErrMalformedRecord is returned when a fixed-layout metadata record
	// fails structural validation.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrNotFound is returned when a named entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented is returned for format features that are
	// recognized but deliberately unsupported.
	ErrNotImplemented = errors.New("not implemented")
)

// IsOutOfBounds returns true if the error is due to a read past the end of
// a source.
func IsOutOfBounds(err error) bool {
	return errors.Is(err, ErrOutOfBounds)
}

// IsInvalidKeyLength returns true if the error is due to key material of
// the wrong width.
func IsInvalidKeyLength(err error) bool {
	return errors.Is(err, ErrInvalidKeyLength)
}

// IsUnknownKeyGeneration returns true if the error is due to a key
// generation outside the loaded tables.
func IsUnknownKeyGeneration(err error) bool {
	return errors.Is(err, ErrUnknownKeyGeneration)
}

// IsMissingKey returns true if the error is due to an absent key.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}

// IsIntegrityViolation returns true if the error is due to failed hash
// verification.
func IsIntegrityViolation(err error) bool {
	return errors.Is(err, ErrIntegrityViolation)
}

// IsMalformedPartitionTable returns true if the error is due to an
// inconsistent flat partition image.
func IsMalformedPartitionTable(err error) bool {
	return errors.Is(err, ErrMalformedPartitionTable)
}

// IsMalformedFilesystemTree returns true if the error is due to an
// inconsistent directory-tree image.
func IsMalformedFilesystemTree(err error) bool {
	return errors.Is(err, ErrMalformedFilesystemTree)
}

// IsMalformedRecord returns true if the error is due to a metadata record
// failing structural validation.
func IsMalformedRecord(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

// IsNotFound returns true if the error is due to a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotImplemented returns true if the error is due to an unsupported
// format feature.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
