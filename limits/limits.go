package limits

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxFTPPayload is the size of the FILE_TRANSFER_PROTOCOL payload field.
	MaxFTPPayload = 251

	// FTPHeaderSize is the size of the packed FTP payload header.
	FTPHeaderSize = 12

	// MaxFTPData is the data area left after the header.
	MaxFTPData = MaxFTPPayload - FTPHeaderSize

	// MaxFileSize is the largest file addressable with 32 bit offsets.
	MaxFileSize = math.MaxUint32
)

var (
	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrPathTooLong indicates a path that does not fit into one payload
	ErrPathTooLong = errors.New("path too long")

	// ErrFileTooLarge indicates a file beyond the 32 bit offset range
	ErrFileTooLarge = errors.New("file too large")
)

// ValidateFTPData validates an FTP data area against MaxFTPData.
// An empty data area is valid.
func ValidateFTPData(data []byte) error {
	if len(data) > MaxFTPData {
		return fmt.Errorf("%w: ftp data size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxFTPData)
	}
	return nil
}

// ValidatePath checks that path and its NUL terminator fit into the data
// area with room to spare.
func ValidatePath(path string) error {
	if len(path)+1 >= MaxFTPData {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPathTooLong, len(path), MaxFTPData-2)
	}
	return nil
}

// ValidatePathPair checks that two NUL separated paths fit into the data area.
func ValidatePathPair(from, to string) error {
	if len(from)+len(to)+1 >= MaxFTPData {
		return fmt.Errorf("%w: %d+%d bytes, limit %d", ErrPathTooLong, len(from), len(to), MaxFTPData-2)
	}
	return nil
}

// ValidateFileSize checks that size is addressable by FTP offsets.
func ValidateFileSize(size int64) error {
	if size < 0 || size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	return nil
}
