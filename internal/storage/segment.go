// Package storage holds the low level helpers used to append to and read back
// journal segment files.
//
// A segment has a single writer during normal operation and is only read back
// when a journal is loaded. These helpers do not coordinate concurrent writers
// and readers; callers own that.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Append writes data to w in one buffered write. Caller owns the lifecycle of w.
func Append(w io.Writer, data []byte) error {
	bw := bufio.NewWriterSize(w, max(len(data), 4096))
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ReadAt reads up to length bytes at offset. Hitting the end of r is not an
// error; the short slice is returned and callers check its length.
func ReadAt(r io.ReaderAt, offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read at %d: %w", offset, err)
	}
	return buf[:n], nil
}
