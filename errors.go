package octosite

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Unique identifier for categorizing errors in logs and metrics
type ErrorCode string

const (
	ErrUnknown          ErrorCode = "err_unknown_error"
	ErrUnexpected       ErrorCode = "err_unexpected"
	ErrInvalidRequest   ErrorCode = "err_invalid_request"
	ErrNotFound         ErrorCode = "err_not_found"
	ErrMethodNotAllowed ErrorCode = "err_method_not_allowed"

	// Asset store errors. Only ErrLookupFailed is recovered locally.
	ErrLookupFailed ErrorCode = "err_lookup_failed"

	// Form proxy errors
	ErrUpstream      ErrorCode = "err_upstream"
	ErrNotConfigured ErrorCode = "err_not_configured"
	ErrBodyTooLarge  ErrorCode = "err_body_too_large"
)

// SiteError is the tagged error type flowing between handlers and the router.
type SiteError struct {
	Original   error     // The underlying error being wrapped
	Code       ErrorCode // Error category
	StatusCode int       // HTTP status code
	Message    string    // Human-readable error message

	file     string
	line     int
	function string
}

// Maps error codes to HTTP status codes and default messages
type APIErrorDef struct {
	Message    string
	StatusCode int
}

var PredefinedErrors = map[ErrorCode]APIErrorDef{
	ErrUnknown:          {"Unknown error", http.StatusInternalServerError},
	ErrUnexpected:       {"Internal Error", http.StatusInternalServerError},
	ErrInvalidRequest:   {"Invalid request", http.StatusBadRequest},
	ErrNotFound:         {"Not found", http.StatusNotFound},
	ErrMethodNotAllowed: {"Method not allowed", http.StatusMethodNotAllowed},
	ErrLookupFailed:     {"Asset lookup failed", http.StatusNotFound},
	ErrUpstream:         {"Upstream error", http.StatusBadGateway},
	ErrNotConfigured:    {"Service unavailable", http.StatusServiceUnavailable},
	ErrBodyTooLarge:     {"Request body too large", http.StatusRequestEntityTooLarge},
}

func (e *SiteError) Error() string {
	base := fmt.Sprintf("[octosite:%s] %s", e.Code, e.Message)
	if e.Original != nil {
		return fmt.Sprintf("%s: %v", base, e.Original)
	}
	return base
}

func (e *SiteError) Unwrap() error {
	return e.Original
}

func (e *SiteError) capture(skip int) {
	if pc, file, line, ok := runtime.Caller(skip + 1); ok {
		e.file = file
		e.line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.function = fn.Name()
		}
	}
}

func New(code ErrorCode, msg string) *SiteError {
	def, ok := PredefinedErrors[code]
	if !ok {
		def = PredefinedErrors[ErrUnknown]
	}

	if msg == "" {
		msg = def.Message
	}

	err := &SiteError{
		Code:       code,
		StatusCode: def.StatusCode,
		Message:    msg,
	}
	err.capture(1)

	return err
}

func Newf(code ErrorCode, format string, args ...interface{}) *SiteError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, msg string) *SiteError {
	if err == nil {
		return nil
	}

	// If already a SiteError, update its fields instead of creating new one
	if siteErr, ok := err.(*SiteError); ok {
		if code != "" {
			siteErr.Code = code
			if def, ok := PredefinedErrors[code]; ok {
				siteErr.StatusCode = def.StatusCode
			}
		}
		if msg != "" {
			siteErr.Message = msg
		}
		siteErr.capture(1)
		return siteErr
	}

	siteErr := New(code, msg)
	siteErr.Original = err
	siteErr.capture(1)

	return siteErr
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *SiteError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var siteErr *SiteError
	if errors.As(err, &siteErr) {
		return siteErr.Code == code
	}

	return false
}

// IsRecoverable reports whether err may be handled by the asset fallback
// instead of reaching the router's top level.
func IsRecoverable(err error) bool {
	return Is(err, ErrLookupFailed)
}

// StatusOf returns the HTTP status carried by err, 500 when none is known.
func StatusOf(err error) int {
	var siteErr *SiteError
	if errors.As(err, &siteErr) && siteErr.StatusCode != 0 {
		return siteErr.StatusCode
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// Logs errors with appropriate context and stack trace
func LogError(logger *zerolog.Logger, err error) {
	logErrorInternal(logger, err, "", "")
}

// LogErrorWithPath logs errors with request path context
func LogErrorWithPath(logger *zerolog.Logger, err error, path string) {
	logErrorInternal(logger, err, path, "")
}

// LogErrorWithPathIP logs errors with request path and IP address context
func LogErrorWithPathIP(logger *zerolog.Logger, err error, path string, ip string) {
	logErrorInternal(logger, err, path, ip)
}

func logErrorInternal(logger *zerolog.Logger, err error, path string, ip string) {
	if err == nil || logger == nil {
		return
	}

	event := logger.Error().Err(err)

	if path != "" {
		event = event.Str("path", path)
	}
	if ip != "" {
		event = event.Str("ip", ip)
	}

	var siteErr *SiteError
	if errors.As(err, &siteErr) {
		event = event.
			Str("error_code", string(siteErr.Code)).
			Int("status_code", siteErr.StatusCode).
			Str("file", siteErr.file).
			Int("line", siteErr.line).
			Str("function", siteErr.function)
	} else if pc, file, line, ok := runtime.Caller(2); ok {
		shortFile := file
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			shortFile = file[idx+1:]
		}

		funcName := "unknown"
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
			if idx := strings.LastIndex(funcName, "."); idx >= 0 {
				funcName = funcName[idx+1:]
			}
		}

		event = event.Str("file", shortFile).Int("line", line).Str("function", funcName)
	}

	event.Msg("[octosite-error] Error occurred")
}

// Handles and logs recovered panics with request information
func LogPanicWithRequestInfo(logger *zerolog.Logger, recovered interface{}, stack []byte, path string, method string, ip string) {
	if logger == nil {
		return
	}

	err := panicError(recovered)
	wrappedErr := Wrap(err, ErrUnexpected, "Panic recovered")

	stackLines := strings.Split(string(stack), "\n")

	// Extract the panic location (function, file, line) from the stack trace
	var panicLocation string
	if len(stackLines) >= 3 {
		panicLocation = fmt.Sprintf("%s at %s", strings.TrimSpace(stackLines[1]), strings.TrimSpace(stackLines[2]))
	}

	stackArr := zerolog.Arr()
	for i := 1; i+1 < len(stackLines); i += 2 {
		funcLine := strings.TrimSpace(stackLines[i])
		fileLine := strings.TrimSpace(stackLines[i+1])
		if funcLine != "" && fileLine != "" {
			stackArr = stackArr.Str(funcLine + "\n\t" + fileLine)
		}
	}

	event := logger.Error().
		Err(wrappedErr).
		Str("error_code", string(wrappedErr.Code)).
		Int("status_code", wrappedErr.StatusCode).
		Array("stack_array", stackArr)

	if path != "" {
		event = event.Str("path", path)
	}
	if method != "" {
		event = event.Str("method", method)
	}
	if ip != "" {
		event = event.Str("ip", ip)
	}

	logMsg := fmt.Sprintf("[octosite-panic] Panic recovered: %s", err.Error())
	if panicLocation != "" {
		logMsg += " at " + panicLocation
	}
	event.Msg(logMsg)
}

// panicError turns a recovered value into an error.
func panicError(recovered interface{}) error {
	switch v := recovered.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return errors.Errorf("%v", recovered)
	}
}

func asSiteError(err error, target **SiteError) bool {
	return errors.As(err, target)
}
