package dxgi

import (
	"errors"
	"fmt"

	ole "github.com/go-ole/go-ole"
)

// Status is a raw HRESULT returned by the duplication backend.
type Status uint32

const (
	StatusOK                   Status = 0x00000000
	StatusAccessDenied         Status = 0x80070005
	StatusInvalidCall          Status = 0x887A0001
	StatusNotFound             Status = 0x887A0002
	StatusUnsupported          Status = 0x887A0004
	StatusDeviceRemoved        Status = 0x887A0005
	StatusDeviceReset          Status = 0x887A0007
	StatusNotCurrentlyAvail    Status = 0x887A0022
	StatusAccessLost           Status = 0x887A0026
	StatusWaitTimeout          Status = 0x887A0027
	StatusSessionDisconnected  Status = 0x887A0028
	StatusModeChangeInProgress Status = 0x887A0025
)

type statusInfo struct {
	Name    string
	Message string
	Kind    Kind
}

var knownStatuses = map[Status]statusInfo{
	StatusAccessLost:          {"DXGI_ERROR_ACCESS_LOST", "desktop duplication interface is invalid, usually after a mode change or desktop switch", ConnectionReset},
	StatusWaitTimeout:         {"DXGI_ERROR_WAIT_TIMEOUT", "no new frame within the timeout", TimedOut},
	StatusInvalidCall:         {"DXGI_ERROR_INVALID_CALL", "the application made an invalid call", InvalidData},
	StatusAccessDenied:        {"E_ACCESSDENIED", "access denied, the desktop may be a secure desktop", PermissionDenied},
	StatusUnsupported:         {"DXGI_ERROR_UNSUPPORTED", "the requested functionality is not supported", ConnectionRefused},
	StatusNotCurrentlyAvail:   {"DXGI_ERROR_NOT_CURRENTLY_AVAILABLE", "resource is not currently available, retry later", Interrupted},
	StatusSessionDisconnected: {"DXGI_ERROR_SESSION_DISCONNECTED", "the duplication session was disconnected", ConnectionAborted},

	// Known names without a dedicated kind.
	StatusNotFound:             {"DXGI_ERROR_NOT_FOUND", "no item at the requested index", Other},
	StatusDeviceRemoved:        {"DXGI_ERROR_DEVICE_REMOVED", "the graphics device was removed", Other},
	StatusDeviceReset:          {"DXGI_ERROR_DEVICE_RESET", "the graphics device was reset", Other},
	StatusModeChangeInProgress: {"DXGI_ERROR_MODE_CHANGE_IN_PROGRESS", "a display mode change is in progress", Other},
}

func (s Status) Error() string { return FormatStatus(s) }

// Failed reports whether s has the HRESULT severity bit set.
func (s Status) Failed() bool { return int32(s) < 0 }

// FormatStatus renders s as "0x887A0027: DXGI_ERROR_WAIT_TIMEOUT: no new frame within the timeout".
func FormatStatus(s Status) string {
	if info, ok := knownStatuses[s]; ok {
		return fmt.Sprintf("0x%08X: %s: %s", uint32(s), info.Name, info.Message)
	}
	return fmt.Sprintf("0x%08X: unknown HRESULT", uint32(s))
}

// Kind is the small error taxonomy every backend status collapses into.
// A Kind is itself an error so callers can test with errors.Is(err, dxgi.TimedOut).
type Kind int

const (
	Other Kind = iota
	ConnectionReset
	TimedOut
	InvalidData
	PermissionDenied
	ConnectionRefused
	Interrupted
	ConnectionAborted
)

var kindNames = [...]string{
	Other:             "other",
	ConnectionReset:   "connection reset",
	TimedOut:          "timed out",
	InvalidData:       "invalid data",
	PermissionDenied:  "permission denied",
	ConnectionRefused: "connection refused",
	Interrupted:       "interrupted",
	ConnectionAborted: "connection aborted",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) Error() string { return k.String() }

// Error is a translated backend failure.
type Error struct {
	Op     string
	Status Status
	Kind   Kind
	// Err is the underlying non-HRESULT cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("dxgi: %s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Status != StatusOK:
		return fmt.Sprintf("dxgi: %s: %s (%s)", e.Op, e.Kind, FormatStatus(e.Status))
	default:
		return fmt.Sprintf("dxgi: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind, e.Status}
}

// KindFor maps a status to its kind. Unknown statuses are Other.
func KindFor(s Status) Kind {
	if info, ok := knownStatuses[s]; ok {
		return info.Kind
	}
	return Other
}

// Translate maps S_OK to nil and every other status to an *Error.
func Translate(s Status) error {
	return translateStatus("", s)
}

func translateStatus(op string, s Status) error {
	if s == StatusOK {
		return nil
	}
	return &Error{Op: op, Status: s, Kind: KindFor(s)}
}

// translate converts an error returned by a backend call into an *Error.
// Backends may report a Status, a go-ole *OleError, or any other error,
// which becomes Other.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if s, ok := statusOf(err); ok {
		return translateStatus(op, s)
	}
	return &Error{Op: op, Kind: Other, Err: err}
}

func statusOf(err error) (Status, bool) {
	var s Status
	if errors.As(err, &s) {
		return s, true
	}
	var oe *ole.OleError
	if errors.As(err, &oe) {
		return Status(uint32(oe.Code())), true
	}
	return 0, false
}

// KindOf returns the kind carried by err, or Other when err is not a
// translated backend error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if s, ok := statusOf(err); ok {
		return KindFor(s)
	}
	return Other
}

// IsTransient reports whether a frame call may simply be retried on the
// same Capturer.
func IsTransient(err error) bool {
	return errors.Is(err, TimedOut) || errors.Is(err, Interrupted)
}

// NeedsRebuild reports whether the duplication session is gone and the
// Capturer must be discarded and rebuilt from a fresh display.
func NeedsRebuild(err error) bool {
	return errors.Is(err, ConnectionAborted) || errors.Is(err, ConnectionReset)
}
