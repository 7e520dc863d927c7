package dispatcher

import "errors"

// ErrorCode is one of the numeric error codes spec.md §6 defines for the
// request surface's error envelope.
type ErrorCode int

// Error codes, exactly as spec.md §6 enumerates them.
const (
	ErrCodeNoMessage      ErrorCode = 411
	ErrCodeInvalidJSON    ErrorCode = 412
	ErrCodeInvalidRequest ErrorCode = 413
	ErrCodeInvalidElement ErrorCode = 414
	ErrCodeMissingElement ErrorCode = 415
	ErrCodeNotFound       ErrorCode = 416
	ErrCodeInvalidCapture ErrorCode = 417
	ErrCodeInvalidState   ErrorCode = 418
	ErrCodeInvalidSDP     ErrorCode = 419
	ErrCodeAlreadyExists  ErrorCode = 420
	ErrCodeUnknown        ErrorCode = 499
)

// Sentinel errors a Handler implementation returns so Dispatch can map
// them to the right numeric code without the handler knowing anything
// about the wire protocol. Wrap these with fmt.Errorf("...: %w", ...)
// for diagnostic context; errors.Is still finds them.
var (
	ErrNotFound       = errors.New("dispatcher: not found")
	ErrAlreadyExists  = errors.New("dispatcher: already exists")
	ErrInvalidState   = errors.New("dispatcher: invalid state")
	ErrInvalidSDP     = errors.New("dispatcher: invalid sdp")
	ErrInvalidCapture = errors.New("dispatcher: invalid capture")
)

// codeForError maps a Handler error to its wire error code, falling back
// to ErrCodeUnknown (499) for anything not a recognized sentinel.
func codeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return ErrCodeAlreadyExists
	case errors.Is(err, ErrInvalidState):
		return ErrCodeInvalidState
	case errors.Is(err, ErrInvalidSDP):
		return ErrCodeInvalidSDP
	case errors.Is(err, ErrInvalidCapture):
		return ErrCodeInvalidCapture
	default:
		return ErrCodeUnknown
	}
}

// ErrorEnvelope is the wire shape of every error response, per spec.md §6:
// `{ "transcode": "event", "error_code": N, "error": "..." }`.
type ErrorEnvelope struct {
	Transcode string    `json:"transcode"`
	ErrorCode ErrorCode `json:"error_code"`
	Error     string    `json:"error"`
}

func errorEnvelope(code ErrorCode, err error) *ErrorEnvelope {
	return &ErrorEnvelope{Transcode: "event", ErrorCode: code, Error: err.Error()}
}

func handlerErrorEnvelope(err error) *ErrorEnvelope {
	return errorEnvelope(codeForError(err), err)
}
