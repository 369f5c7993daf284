package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // nothing to undo or redo, failed scenarios
	ExitCommandError = 2 // bad flags or config, unreadable database
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope shared by --format json and the serve
// HTTP endpoints.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed operation, e.g. E_NOTHING_TO_UNDO.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// printer writes command results either as a JSON envelope or as text.
type printer struct {
	json    bool
	verbose bool
	w       io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	return &printer{json: opts.Format == "json", verbose: opts.Verbose, w: w}
}

// result prints data. In text mode, text renders it; a nil text prints
// data with its default formatting.
func (p *printer) result(data any, text func(io.Writer)) error {
	if p.json {
		return p.envelope(CLIResponse{Status: "ok", Data: data})
	}
	if text == nil {
		_, err := fmt.Fprintln(p.w, data)
		return err
	}
	text(p.w)
	return nil
}

// failure prints an error result. Text mode shows details only when verbose.
func (p *printer) failure(code, message string, details any) error {
	if p.json {
		return p.envelope(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(p.w, "Error [%s]: %s\n", code, message)
	if p.verbose && details != nil {
		fmt.Fprintf(p.w, "Details: %v\n", details)
	}
	return nil
}

func (p *printer) envelope(resp CLIResponse) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
