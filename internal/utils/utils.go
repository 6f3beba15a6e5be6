package utils

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const PeerIDPrefix = "-PF0001-"

// FileExists reports whether path names a regular file. Directories and
// paths that cannot be stat'd do not count.
func FileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// NewPeerID returns a 20-byte client-prefixed identifier. The random suffix
// is taken from a version 4 UUID.
func NewPeerID() [20]byte {
	var peerID [20]byte

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	copy(peerID[:], PeerIDPrefix+suffix)

	return peerID
}

// Deadline turns a per-operation timeout into an absolute deadline. A zero
// timeout yields the zero time, meaning no deadline.
func Deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(timeout)
}

// Reads exactly len(buffer) bytes from the provided net.Conn into buffer.
// If a non-zero deadline is provided, it sets the read deadline on the connection before reading.
// If the deadline is zero, no deadline is set and the function may block indefinitely
// until all bytes are read or an error occurs.
func ConnReadFull(conn net.Conn, buffer []byte, deadline time.Time) (int, error) {
	if !deadline.IsZero() {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}

		defer conn.SetReadDeadline(time.Time{})
	}

	read := 0

	for read < len(buffer) {
		n, err := conn.Read(buffer[read:])
		read += n

		if err != nil {
			return read, err
		}
	}

	return read, nil
}

// Writes all of buffer to conn, honouring deadline the same way ConnReadFull does.
func ConnWriteFull(conn net.Conn, buffer []byte, deadline time.Time) (int, error) {
	if !deadline.IsZero() {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return 0, err
		}

		defer conn.SetWriteDeadline(time.Time{})
	}

	return conn.Write(buffer)
}

// WriteFileAtomic streams into a temporary file next to path and renames it
// into place only when write succeeds, so a failed run leaves nothing behind.
func WriteFileAtomic(path string, write func(file *os.File) error) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")

	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}

	tmpPath := tmpFile.Name()

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to close temporary file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to move downloaded file to %s: %w", path, err)
	}

	return nil
}
