package efs2

import "errors"

// Sentinel errors returned by the core package. Callers should compare
// against these with errors.Is rather than string-matching.
var (
	// ErrNoSuperblock is returned when no candidate superblock in the
	// scanned region passes its CRC-30 check.
	ErrNoSuperblock = errors.New("efs2: no valid superblock found")

	// ErrCorruptStructure is returned when a required on-disk record
	// fails a structural check (magic bytes, bounds, discriminator).
	ErrCorruptStructure = errors.New("efs2: corrupt on-disk structure")

	// ErrEccUncorrectable is returned by the ECC layer when a page's
	// parity is non-blank but the data could not be corrected.
	ErrEccUncorrectable = errors.New("efs2: uncorrectable ECC error (custom ecc?)")

	// ErrLogSequenceBroken is returned when the accepted log chain's
	// sequence numbers are not contiguous.
	ErrLogSequenceBroken = errors.New("efs2: log sequence is broken")

	// ErrDuplicatePage is returned by the NOR page manager when two
	// distinct clusters reverse-map to the same physical page.
	ErrDuplicatePage = errors.New("efs2: duplicate page in reverse table")

	// ErrFileNotFound is returned when path resolution cannot locate a
	// named component.
	ErrFileNotFound = errors.New("efs2: file not found")

	// ErrNotADirectory is returned when a non-final path component, or
	// the target of cd, is not a directory.
	ErrNotADirectory = errors.New("efs2: not a directory")

	// ErrBadArgument is returned for malformed CLI input.
	ErrBadArgument = errors.New("efs2: bad argument")

	// ErrClosed is returned by façade operations after Close.
	ErrClosed = errors.New("efs2: filesystem is closed")
)
