package octosite

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/coffyg/octosite/kvasset"
)

func TestNewUsesPredefinedDefaults(t *testing.T) {
	err := New(ErrLookupFailed, "")
	if err.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", err.StatusCode)
	}
	if err.Message != "Asset lookup failed" {
		t.Errorf("Unexpected message %q", err.Message)
	}
	if err.file == "" || err.line == 0 {
		t.Error("Expected the call site to be captured")
	}

	unknown := New(ErrorCode("err_made_up"), "x")
	if unknown.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected unknown codes to map to 500, got %d", unknown.StatusCode)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrUnexpected, "x") != nil {
		t.Error("Wrap(nil) must return nil")
	}

	base := errors.New("no such key")
	err := Wrap(base, ErrLookupFailed, "asset lookup failed")
	if !errors.Is(err, base) {
		t.Error("Expected the original error in the chain")
	}
	if err.Error() != "[octosite:err_lookup_failed] asset lookup failed: no such key" {
		t.Errorf("Unexpected text %q", err.Error())
	}

	again := Wrap(err, ErrUnexpected, "")
	if again != err {
		t.Error("Expected wrapping a SiteError to reuse it")
	}
	if again.Code != ErrUnexpected || again.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected code and status to follow the new code, got %s %d", again.Code, again.StatusCode)
	}
	if again.Message != "asset lookup failed" {
		t.Errorf("Expected an empty message to keep the old one, got %q", again.Message)
	}
}

func TestIsAndRecoverable(t *testing.T) {
	err := fmt.Errorf("handler: %w", Newf(ErrLookupFailed, "key %s", "a.js"))

	if !Is(err, ErrLookupFailed) || Is(err, ErrUnexpected) {
		t.Error("Is must follow the wrap chain and match the code")
	}
	if !IsRecoverable(err) {
		t.Error("Lookup failures are recoverable")
	}
	if IsRecoverable(New(ErrUnexpected, "")) || IsRecoverable(nil) {
		t.Error("Only lookup failures are recoverable")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"site error", New(ErrInvalidRequest, ""), http.StatusBadRequest},
		{"lookup error", &kvasset.LookupError{Status: http.StatusNotFound}, http.StatusNotFound},
		{"wrapped lookup error", errors.Wrap(&kvasset.LookupError{Status: http.StatusMethodNotAllowed}, "ctx"), http.StatusMethodNotAllowed},
		{"plain error", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestPanicError(t *testing.T) {
	if panicError("boom").Error() != "boom" {
		t.Error("Expected string panics to keep their text")
	}
	if panicError(42).Error() != "42" {
		t.Error("Expected other values to be formatted")
	}
	base := errors.New("as error")
	if panicError(base) != base {
		t.Error("Expected error panics to be returned unchanged")
	}
}

func TestLogPanicWithRequestInfo(t *testing.T) {
	buf := captureLogs(t)

	LogPanicWithRequestInfo(GetLogger(), "boom", []byte("goroutine 1 [running]:\nmain.f()\n\t/src/main.go:10\n"), "/app.js", "GET", "10.0.0.1")

	out := buf.String()
	for _, want := range []string{"[octosite-panic] Panic recovered: boom", `"path":"/app.js"`, `"ip":"10.0.0.1"`, `"error_code":"err_unexpected"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %s, got %s", want, out)
		}
	}
}
