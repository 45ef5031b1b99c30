// Package checksum computes CRC32 (IEEE) checksums of large files and manages
// checksums stored in the first four bytes of a file, such as an HDF5 user block.
package checksum

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/arloliu/looper/types"
)

// HeadSize is the number of bytes a checksum occupies at a file head.
const HeadSize = 4

const chunkSize = 64 * 1024

// Bytes returns the big-endian CRC32 of r after discarding the first skip bytes.
// r is read in fixed-size chunks so memory use stays flat for large files.
func Bytes(r io.Reader, skip int64) ([]byte, error) {
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to skip %d bytes: %w", skip, err)
		}
	}

	h := crc32.NewIEEE()
	if _, err := io.CopyBuffer(h, r, make([]byte, chunkSize)); err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return h.Sum(nil), nil
}

// Hex returns the CRC32 of r as 8 lowercase, zero-padded hex digits.
func Hex(r io.Reader, skip int64) (string, error) {
	sum, err := Bytes(r, skip)
	if err != nil {
		return "", err
	}

	return Format(sum), nil
}

// Format renders a 4-byte big-endian checksum as 8 lowercase hex digits.
func Format(sum []byte) string {
	return fmt.Sprintf("%08x", binary.BigEndian.Uint32(sum))
}

// WriteHead computes the CRC32 of everything after the first HeadSize bytes of
// f and overwrites those bytes with it.
func WriteHead(f io.ReadWriteSeeker) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	sum, err := Bytes(f, HeadSize)
	if err != nil {
		return err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	if _, err := f.Write(sum); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	return nil
}

// ValidateHead checks the checksum stored at the head of f.
//
// When expected is non-empty the stored value must equal it
// (types.ErrChecksumUnexpected). The stored value must also equal the CRC32
// of the rest of the file (types.ErrChecksumMismatch).
func ValidateHead(f io.ReadSeeker, expected string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	head := make([]byte, HeadSize)
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("failed to read checksum at file head: %w", err)
	}
	stored := Format(head)

	if expected != "" && expected != stored {
		return fmt.Errorf("%w: the expected checksum was %s, but the checksum found at the file head is %s",
			types.ErrChecksumUnexpected, expected, stored)
	}

	sum, err := Bytes(f, 0)
	if err != nil {
		return err
	}
	if !bytes.Equal(sum, head) {
		return fmt.Errorf("%w: the checksum calculated for the file was %s, but the checksum found at the file head is %s",
			types.ErrChecksumMismatch, Format(sum), stored)
	}

	return nil
}
