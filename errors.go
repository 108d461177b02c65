package fatfs

import "github.com/go-fatfs/fatfs/errors"

// These are re-exports of the errors package's sentinels for callers that
// only want to compare error kinds and don't need errors.DriverError's
// fuller interface. Code that needs Errno()/IsSameError should import
// errors directly.
var (
	ErrIOFailed            = errors.ErrIOFailed
	ErrFileSystemCorrupted = errors.ErrFileSystemCorrupted
	ErrNoSpaceOnDevice     = errors.ErrNoSpaceOnDevice
	ErrReadOnlyFileSystem  = errors.ErrReadOnlyFileSystem
	ErrNotFound            = errors.ErrNotFound
	ErrExists              = errors.ErrExists
	ErrNotADirectory       = errors.ErrNotADirectory
	ErrIsADirectory        = errors.ErrIsADirectory
	ErrDirectoryNotEmpty   = errors.ErrDirectoryNotEmpty
	ErrNameTooLong         = errors.ErrNameTooLong
	ErrInvalidArgument     = errors.ErrInvalidArgument
	ErrNotSupported        = errors.ErrNotSupported
	ErrCrossDeviceLink     = errors.ErrCrossDeviceLink
	ErrArgumentOutOfRange  = errors.ErrArgumentOutOfRange
)
