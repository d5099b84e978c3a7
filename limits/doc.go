// Package limits provides centralized size constants and validation functions
// for the MAVLink FTP sub-protocol. This package ensures consistent size
// enforcement across the FTP client and server.
//
// # Payload Layout
//
// An FTP payload travels in the 251 byte payload field of the
// FILE_TRANSFER_PROTOCOL message:
//
//   - FTPHeaderSize (12 bytes): sequence number, session, opcode, size,
//     requested opcode, burst-complete flag, padding and a 32 bit offset.
//
//   - MaxFTPData (239 bytes): the data area. Paths, directory listings and
//     file chunks all have to fit here.
//
//   - MaxFTPPayload (251 bytes): header plus data.
//
// # Validation Functions
//
//	if err := limits.ValidatePath(remotePath); err != nil {
//	    // ErrPathTooLong: path plus its terminator does not fit into one payload
//	}
//
// Chunks are checked with ValidateFTPData and whole files with
// ValidateFileSize.
//
// # Error Types
//
//   - ErrMessageTooLarge: Returned when a data area exceeds MaxFTPData
//   - ErrPathTooLong: Returned when a path cannot be encoded into a payload
//   - ErrFileTooLarge: Returned when a file exceeds the 32 bit offset range
package limits
