// Package errors is a compatibility shim for POSIX-defined errno codes,
// wrapped in a small DriverError type that carries a message and can be
// compared against the sentinels here without caring about that message.
//
// The FAT core never talks to syscall.Errno directly: on some platforms it
// doesn't define everything we need (EUCLEAN in particular), and we want
// errors that survive being generated on a system the disk image was never
// written for.
package errors

import "fmt"

// Errno is a POSIX-style error code, independent of any particular
// platform's syscall package.
type Errno int

const (
	EPERM Errno = iota + 1
	ENOENT
	EIO
	EEXIST
	ENOTDIR
	EISDIR
	EINVAL
	ENOSPC
	EROFS
	EMLINK
	ENAMETOOLONG
	ENOSYS
	ENOTEMPTY
	ELOOP
	EXDEV
	ENOTSUP
	EBUSY
	EALREADY
	EUCLEAN
	EFBIG
)

var errnoText = map[Errno]string{
	EPERM:        "operation not permitted",
	ENOENT:       "no such file or directory",
	EIO:          "input/output error",
	EEXIST:       "file exists",
	ENOTDIR:      "not a directory",
	EISDIR:       "is a directory",
	EINVAL:       "invalid argument",
	ENOSPC:       "no space left on device",
	EROFS:        "read-only file system",
	EMLINK:       "too many links",
	ENAMETOOLONG: "file name too long",
	ENOSYS:       "function not implemented",
	ENOTEMPTY:    "directory not empty",
	ELOOP:        "too many levels of symbolic links",
	EXDEV:        "invalid cross-device link",
	ENOTSUP:      "operation not supported",
	EBUSY:        "device or resource busy",
	EALREADY:     "operation already in progress",
	EUCLEAN:      "structure needs cleaning",
	EFBIG:        "file too large",
}

func (e Errno) Error() string {
	if text, ok := errnoText[e]; ok {
		return text
	}
	return fmt.Sprintf("errno %d", int(e))
}
