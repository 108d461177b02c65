package inode

import (
	"io"

	"github.com/go-fatfs/fatfs/errors"
)

// Stream is a file-like io.ReadWriteSeeker over one inode's cluster chain.
// It delegates every byte-range operation to an Engine that walks a
// non-contiguous cluster chain instead of indexing one contiguous
// block-cache buffer.
type Stream struct {
	inode    *Inode
	engine   *Engine
	position int64
	readOnly bool
}

// NewStream wraps inode for byte-level I/O through engine.
func NewStream(n *Inode, e *Engine, readOnly bool) *Stream {
	return &Stream{inode: n, engine: e, readOnly: readOnly}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.engine.ReadAt(s.inode, p, s.position)
	s.position += int64(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadAt implements io.ReaderAt.
func (s *Stream) ReadAt(p []byte, offset int64) (int, error) {
	n, err := s.engine.ReadAt(s.inode, p, offset)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	if s.readOnly {
		return 0, errors.ErrReadOnlyFileSystem
	}
	n, err := s.engine.WriteAt(s.inode, p, s.position)
	s.position += int64(n)
	if err != nil {
		return n, err
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (s *Stream) WriteAt(p []byte, offset int64) (int, error) {
	if s.readOnly {
		return 0, errors.ErrReadOnlyFileSystem
	}
	return s.engine.WriteAt(s.inode, p, offset)
}

// Seek implements io.Seeker. Seeking past the end of the file is allowed;
// the chain grows on the next write.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.position + offset
	case io.SeekEnd:
		abs = s.inode.Size() + offset
	default:
		return s.position, errors.NewWithMessage(errors.EINVAL, "invalid seek whence")
	}
	if abs < 0 {
		return s.position, errors.NewWithMessage(errors.EINVAL, "seek would go negative")
	}
	s.position = abs
	return abs, nil
}

// Truncate resizes the underlying inode.
func (s *Stream) Truncate(size int64) error {
	if s.readOnly {
		return errors.ErrReadOnlyFileSystem
	}
	return s.engine.Truncate(s.inode, size)
}
