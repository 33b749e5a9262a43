package filestore

import "errors"

var (
	// ErrCorruptHeader is returned when the fixed header block cannot be
	// parsed.
	ErrCorruptHeader = errors.New("filestore: corrupt header")

	// ErrCorruptRecord is returned when a log record fails to decode,
	// decompress, or checksum-verify outside of crash recovery (a clean
	// header but a bad record means real corruption, not a partial
	// write).
	ErrCorruptRecord = errors.New("filestore: corrupt record")

	// ErrClosed names the closed-store condition. No Store method checks
	// for it: an operation after Close fails with the closed file's own
	// error instead.
	ErrClosed = errors.New("filestore: store is closed")
)
