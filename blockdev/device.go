// Package blockdev provides the raw sector-addressable I/O layer the FAT
// core sits on top of: an interface with a real file-backed implementation
// and an in-memory one for tests.
package blockdev

import (
	"io"
	"os"

	"github.com/xaionaro-go/bytesextra"

	"github.com/go-fatfs/fatfs/errors"
)

// SectorID addresses a single sector on the device. Sector 0 is the BPB.
type SectorID uint64

// Device is the raw sector-addressable I/O layer. Everything above it --
// the block cache, the FAT table, the directory engine -- talks to storage
// exclusively through this interface.
type Device interface {
	// BytesPerSector is the size of one sector, fixed for the device's
	// lifetime.
	BytesPerSector() uint

	// TotalSectors is the number of addressable sectors.
	TotalSectors() uint64

	// ReadSector fills buf (which must be exactly BytesPerSector() bytes)
	// with the contents of sector id.
	ReadSector(id SectorID, buf []byte) errors.DriverError

	// WriteSector writes buf (exactly BytesPerSector() bytes) to sector id.
	// Returns ErrReadOnlyFileSystem if WriteEnabled() is false.
	WriteSector(id SectorID, buf []byte) errors.DriverError

	// Sync flushes any OS-level buffering. It does not know about the block
	// cache above it; the cache is responsible for writing dirty blocks
	// through WriteSector before calling this.
	Sync() errors.DriverError

	// WriteEnabled reports whether the device currently accepts writes. The
	// core clears this when it declares the file system corrupted (see
	// Filesystem.Corrupted).
	WriteEnabled() bool

	// SetWriteEnabled is used by the core to revoke write access when
	// corruption is detected. It is not meant for mount-option handling
	// (that's a constructor-time decision).
	SetWriteEnabled(bool)
}

func checkBounds(dev Device, id SectorID, bufLen int) errors.DriverError {
	if uint64(id) >= dev.TotalSectors() {
		return errors.NewWithMessage(
			errors.EINVAL,
			"sector out of range",
		)
	}
	if bufLen != int(dev.BytesPerSector()) {
		return errors.NewWithMessage(
			errors.EINVAL,
			"buffer must be exactly one sector",
		)
	}
	return nil
}

// FileDevice wraps an *os.File as a Device.
type FileDevice struct {
	file         *os.File
	bytesPerSec  uint
	totalSectors uint64
	writeEnabled bool
}

// NewFileDevice creates a Device over an already-open file. totalSectors is
// derived from the file's current size.
func NewFileDevice(file *os.File, bytesPerSector uint, writable bool) (*FileDevice, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	return &FileDevice{
		file:         file,
		bytesPerSec:  bytesPerSector,
		totalSectors: uint64(info.Size()) / uint64(bytesPerSector),
		writeEnabled: writable,
	}, nil
}

func (d *FileDevice) BytesPerSector() uint    { return d.bytesPerSec }
func (d *FileDevice) TotalSectors() uint64    { return d.totalSectors }
func (d *FileDevice) WriteEnabled() bool      { return d.writeEnabled }
func (d *FileDevice) SetWriteEnabled(v bool)  { d.writeEnabled = v }

func (d *FileDevice) ReadSector(id SectorID, buf []byte) errors.DriverError {
	if err := checkBounds(d, id, len(buf)); err != nil {
		return err
	}

	offset := int64(id) * int64(d.bytesPerSec)
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.ErrIOFailed.WrapError(err)
	}
	if n < len(buf) {
		return errors.ErrIOFailed.WithMessage("short read")
	}
	return nil
}

func (d *FileDevice) WriteSector(id SectorID, buf []byte) errors.DriverError {
	if !d.writeEnabled {
		return errors.ErrReadOnlyFileSystem
	}
	if err := checkBounds(d, id, len(buf)); err != nil {
		return err
	}

	offset := int64(id) * int64(d.bytesPerSec)
	_, err := d.file.WriteAt(buf, offset)
	if err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (d *FileDevice) Sync() errors.DriverError {
	if err := d.file.Sync(); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// MemoryDevice wraps an in-memory byte slice as a Device, backed by
// bytesextra.ReadWriteSeeker. Used by tests.
type MemoryDevice struct {
	stream       *bytesextra.ReadWriteSeeker
	bytesPerSec  uint
	totalSectors uint64
	writeEnabled bool
}

// NewMemoryDevice creates a Device over a freshly zeroed buffer of the given
// size.
func NewMemoryDevice(bytesPerSector uint, totalSectors uint64, writable bool) *MemoryDevice {
	storage := make([]byte, bytesPerSector*uint(totalSectors))
	stream := bytesextra.NewReadWriteSeeker(storage)
	return &MemoryDevice{
		stream:       stream,
		bytesPerSec:  bytesPerSector,
		totalSectors: totalSectors,
		writeEnabled: writable,
	}
}

// WrapMemoryDevice creates a Device over an existing buffer, such as one
// produced by reading an entire disk image into memory.
func WrapMemoryDevice(data []byte, bytesPerSector uint, writable bool) *MemoryDevice {
	stream := bytesextra.NewReadWriteSeeker(data)
	return &MemoryDevice{
		stream:       stream,
		bytesPerSec:  bytesPerSector,
		totalSectors: uint64(len(data)) / uint64(bytesPerSector),
		writeEnabled: writable,
	}
}

func (d *MemoryDevice) BytesPerSector() uint   { return d.bytesPerSec }
func (d *MemoryDevice) TotalSectors() uint64   { return d.totalSectors }
func (d *MemoryDevice) WriteEnabled() bool     { return d.writeEnabled }
func (d *MemoryDevice) SetWriteEnabled(v bool) { d.writeEnabled = v }

func (d *MemoryDevice) ReadSector(id SectorID, buf []byte) errors.DriverError {
	if err := checkBounds(d, id, len(buf)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(id)*int64(d.bytesPerSec), io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := d.stream.Read(buf); err != nil && err != io.EOF {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (d *MemoryDevice) WriteSector(id SectorID, buf []byte) errors.DriverError {
	if !d.writeEnabled {
		return errors.ErrReadOnlyFileSystem
	}
	if err := checkBounds(d, id, len(buf)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(id)*int64(d.bytesPerSec), io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := d.stream.Write(buf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (d *MemoryDevice) Sync() errors.DriverError { return nil }
