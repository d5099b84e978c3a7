package ftp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// errnoENOENT is the errno PX4 reports for a missing file.
const errnoENOENT = 2

// ClientResult is the outcome reported to client callbacks.
type ClientResult int

const (
	Unknown ClientResult = iota
	Success
	Next
	Timeout
	Busy
	FileIoError
	FileExists
	FileDoesNotExist
	FileProtected
	InvalidParameter
	Unsupported
	ProtocolError
	NoSystem
	Cancelled
)

var clientResultNames = map[ClientResult]string{
	Unknown:          "Unknown",
	Success:          "Success",
	Next:             "Next",
	Timeout:          "Timeout",
	Busy:             "Busy",
	FileIoError:      "FileIoError",
	FileExists:       "FileExists",
	FileDoesNotExist: "FileDoesNotExist",
	FileProtected:    "FileProtected",
	InvalidParameter: "InvalidParameter",
	Unsupported:      "Unsupported",
	ProtocolError:    "ProtocolError",
	NoSystem:         "NoSystem",
	Cancelled:        "Cancelled",
}

func (r ClientResult) String() string {
	if name, ok := clientResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ClientResult(%d)", int(r))
}

// Err returns nil for Success and a *ResultError otherwise.
func (r ClientResult) Err() error {
	if r == Success {
		return nil
	}
	return &ResultError{Result: r}
}

// ResultError wraps a non-success ClientResult as an error.
type ResultError struct {
	Result ClientResult
}

func (e *ResultError) Error() string {
	return "ftp operation failed: " + e.Result.String()
}

// Progress describes how far a transfer has come.
type Progress struct {
	BytesTransferred uint32
	TotalBytes       uint32
}

// Fraction returns the transferred share in [0,1].
func (p Progress) Fraction() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes)
}

// translate maps a server error code onto a ClientResult.
func translate(result ServerResult) ClientResult {
	switch result {
	case ServerSuccess:
		return Success
	case ServerErrTimeout:
		return Timeout
	case ServerErrFileIO:
		return FileIoError
	case ServerErrFileExists:
		return FileExists
	case ServerErrFileProtected:
		return FileProtected
	case ServerErrUnknownCommand:
		return Unsupported
	case ServerErrFileDoesNotExist:
		return FileDoesNotExist
	default:
		logrus.WithFields(logrus.Fields{
			"function": "translate",
			"code":     uint8(result),
		}).Info("Unknown server error code")
		return ProtocolError
	}
}

// resultFromNak decodes the error code of a Nak. PX4 reports a missing
// file as ERR_FAIL_ERRNO with ENOENT.
func resultFromNak(p *Packet) ClientResult {
	sr := ServerResult(p.Data[0])
	if sr == ServerErrFailErrno && p.Data[1] == errnoENOENT {
		sr = ServerErrFileDoesNotExist
	}
	return translate(sr)
}
