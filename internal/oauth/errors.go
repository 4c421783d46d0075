package oauth

import (
	"errors"
	"strings"
)

// ErrorType is the coarse failure class carried on the wire as errorType.
// Hosts branch UI on it; the message next to it is for humans.
type ErrorType string

const (
	ErrLaunchFailed   ErrorType = "BROWSER_LAUNCH_FAILED"
	ErrTimeout        ErrorType = "OAUTH_TIMEOUT"
	ErrCancelled      ErrorType = "USER_CANCELLED"
	ErrBrowserClosed  ErrorType = "BROWSER_CLOSED"
	ErrCodeExtraction ErrorType = "CODE_EXTRACTION_FAILED"
	ErrScript         ErrorType = "SCRIPT_ERROR"
	ErrUnknown        ErrorType = "UNKNOWN"
)

// FlowError is raised at the exact failure site with its type already
// attached, so nothing downstream has to guess from message text.
type FlowError struct {
	Type ErrorType
	Msg  string
	Err  error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *FlowError) Unwrap() error { return e.Err }

// Classify maps any error to an ErrorType. Structured FlowErrors carry their
// own type; the substring fallback only catches errors raised outside this
// package (chromedp, the OS) that we did not wrap.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Type
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrTimeout
	case strings.Contains(msg, "cancelled"), strings.Contains(msg, "canceled"):
		return ErrCancelled
	case strings.Contains(msg, "closed"):
		return ErrBrowserClosed
	case strings.Contains(msg, "launch"), strings.Contains(msg, "executable"), strings.Contains(msg, "no chrome"):
		return ErrLaunchFailed
	case strings.Contains(msg, "code"):
		return ErrCodeExtraction
	default:
		return ErrUnknown
	}
}
