package vfs

import (
	"errors"
	"io/fs"
	"syscall"
)

type wrappedError struct {
	cause error
	errno syscall.Errno
}

// WrapError turns an arbitrary error from the os/syscall layer into an
// errno-carrying Error. Unrecognized errors map to EIO.
func WrapError(err error) Error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &wrappedError{cause: err, errno: errno}
	}

	switch {
	case errors.Is(err, fs.ErrPermission):
		errno = syscall.EPERM
	case errors.Is(err, fs.ErrNotExist):
		errno = syscall.ENOENT
	case errors.Is(err, fs.ErrExist):
		errno = syscall.EEXIST
	case errors.Is(err, fs.ErrInvalid):
		errno = syscall.EINVAL
	case errors.Is(err, fs.ErrClosed):
		errno = syscall.EBADF
	default:
		errno = syscall.EIO
	}

	return &wrappedError{cause: err, errno: errno}
}

func (m *wrappedError) Error() string {
	return m.cause.Error()
}

func (m *wrappedError) Errno() uintptr {
	return uintptr(m.errno)
}

func (m *wrappedError) Unwrap() error {
	return m.cause
}

type vfsError struct {
	msg   string
	errno syscall.Errno
}

// NewError builds an Error with an explicit errno and message.
func NewError(msg string, errno syscall.Errno) Error {
	return &vfsError{
		msg:   msg,
		errno: errno,
	}
}

func (m *vfsError) Error() string {
	return m.msg
}

func (m *vfsError) Errno() uintptr {
	return uintptr(m.errno)
}

// Common constructors for the errnos the mount sources actually raise.

func ErrNotFound(path string) Error {
	return &vfsError{msg: "no such file or directory: " + path, errno: syscall.ENOENT}
}

func ErrNotDir(path string) Error {
	return &vfsError{msg: "not a directory: " + path, errno: syscall.ENOTDIR}
}

func ErrIsDir(path string) Error {
	return &vfsError{msg: "is a directory: " + path, errno: syscall.EISDIR}
}

func ErrReadOnly(path string) Error {
	return &vfsError{msg: "read-only source: " + path, errno: syscall.EROFS}
}

func ErrClosed() Error {
	return &vfsError{msg: "file handle is closed", errno: syscall.EBADF}
}

// IsNotFound reports whether err carries ENOENT.
func IsNotFound(err Error) bool {
	return err != nil && err.Errno() == uintptr(syscall.ENOENT)
}
