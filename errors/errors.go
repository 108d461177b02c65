package errors

import "fmt"

// DriverError is the error type returned by every operation in the FAT
// core. It carries a POSIX-ish errno code so callers can make routing
// decisions (read-only? retry? surface to the user?) without parsing
// message text.
type DriverError interface {
	error
	Errno() Errno
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	// IsSameError reports whether other carries the same errno code.
	IsSameError(other error) bool
}

type driverError struct {
	code          Errno
	message       string
	originalError error
}

// New creates a DriverError from a bare errno code, using the code's
// default description as the message.
func New(code Errno) DriverError {
	return driverError{code: code, message: code.Error()}
}

// NewWithMessage creates a DriverError with a custom message.
func NewWithMessage(code Errno, message string) DriverError {
	return driverError{code: code, message: message}
}

func (e driverError) Error() string {
	return e.message
}

func (e driverError) Errno() Errno {
	return e.code
}

func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e driverError) WrapError(err error) DriverError {
	return driverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.message, err.Error()),
		originalError: err,
	}
}

func (e driverError) Unwrap() error {
	return e.originalError
}

func (e driverError) IsSameError(other error) bool {
	var de DriverError
	if As(other, &de) {
		return de.Errno() == e.code
	}
	return false
}

// As is a narrow re-implementation of errors.As for the one shape we care
// about here, so this package doesn't need to import the standard "errors"
// package under a name that collides with itself.
func As(err error, target *DriverError) bool {
	for err != nil {
		if de, ok := err.(DriverError); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Sentinels for each error kind the driver surfaces. Each is safe to
// compare with IsSameError regardless of attached message text.
var (
	ErrIOFailed             = New(EIO)
	ErrFileSystemCorrupted  = New(EUCLEAN)
	ErrNoSpaceOnDevice      = New(ENOSPC)
	ErrReadOnlyFileSystem   = New(EROFS)
	ErrNotFound             = New(ENOENT)
	ErrExists               = New(EEXIST)
	ErrNotADirectory        = New(ENOTDIR)
	ErrIsADirectory         = New(EISDIR)
	ErrDirectoryNotEmpty    = New(ENOTEMPTY)
	ErrNameTooLong          = New(ENAMETOOLONG)
	ErrInvalidArgument      = New(EINVAL)
	ErrNotSupported         = New(ENOTSUP)
	ErrCrossDeviceLink      = New(EXDEV)
	ErrArgumentOutOfRange   = New(EINVAL)
	ErrFileTooLarge         = New(EFBIG)
	ErrAlreadyInProgress    = New(EALREADY)
	ErrBusy                 = New(EBUSY)
	ErrTooManyLinks         = New(EMLINK)
	ErrLinkCycleDetected    = New(ELOOP)
	ErrNotImplemented       = New(ENOSYS)
	ErrPermissionDenied     = New(EPERM)
)
