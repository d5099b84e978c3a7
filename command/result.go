package command

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// Result is the outcome of a command.
type Result int

const (
	Success Result = iota
	NoSystem
	ConnectionError
	Busy
	Denied
	Unsupported
	Timeout
	InProgress
	TemporarilyRejected
	Failed
	Cancelled
	UnknownError
)

var resultNames = map[Result]string{
	Success:             "Success",
	NoSystem:            "NoSystem",
	ConnectionError:     "ConnectionError",
	Busy:                "Busy",
	Denied:              "Denied",
	Unsupported:         "Unsupported",
	Timeout:             "Timeout",
	InProgress:          "InProgress",
	TemporarilyRejected: "TemporarilyRejected",
	Failed:              "Failed",
	Cancelled:           "Cancelled",
	UnknownError:        "UnknownError",
}

// String returns the name of the result.
func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Terminal reports whether r ends a command.
func (r Result) Terminal() bool {
	return r != InProgress
}

// Err returns nil for Success and a *ResultError otherwise.
func (r Result) Err() error {
	if r == Success {
		return nil
	}
	return &ResultError{Result: r}
}

// ResultError wraps a non-success Result as an error.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	return "command failed: " + e.Result.String()
}

// resultFromAck maps a MAV_RESULT onto a Result. The second return value is
// false for codes outside the known table.
func resultFromAck(code common.MAV_RESULT) (Result, bool) {
	switch code {
	case common.MAV_RESULT_ACCEPTED:
		return Success, true
	case common.MAV_RESULT_TEMPORARILY_REJECTED:
		return TemporarilyRejected, true
	case common.MAV_RESULT_DENIED:
		return Denied, true
	case common.MAV_RESULT_UNSUPPORTED:
		return Unsupported, true
	case common.MAV_RESULT_FAILED:
		return Failed, true
	case common.MAV_RESULT_IN_PROGRESS:
		return InProgress, true
	case common.MAV_RESULT_CANCELLED:
		return Cancelled, true
	default:
		return UnknownError, false
	}
}
