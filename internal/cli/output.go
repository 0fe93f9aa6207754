package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A payload was rejected (validation or malformed payload)
	ExitCommandError = 2 // Command error (unreadable file, database unavailable, etc.)
)

// Error codes for failures that are not sync errors.
const (
	ErrCodeGeneric  = "ERROR"
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeIO       = "IO_ERROR"
	ErrCodeStore    = "STORE_ERROR"

	ErrCodeTestFailed = "TEST_FAILED"

	ErrCodeBOMTooLarge      = "BOM_TOO_LARGE"
	ErrCodeQuantityOverflow = "QUANTITY_OVERFLOW"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeOf picks the exit code for a failed sync or query. Rejected
// payloads exit 1; everything else is a command error.
func exitCodeOf(err error) int {
	code := reconcile.CodeOf(err)
	if code.IsValidation() || code == reconcile.CodeMalformedPayload {
		return ExitFailure
	}
	return ExitCommandError
}

// errorCodeOf names err for CLIError.Code.
func errorCodeOf(err error) string {
	if code := reconcile.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, report.ErrTooLarge):
		return ErrCodeBOMTooLarge
	case errors.Is(err, report.ErrQuantityOverflow):
		return ErrCodeQuantityOverflow
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// newFormatter builds the formatter for a command from the global flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code       string `json:"code"` // sync error code, e.g. "SELF_REFERENCE"
	Message    string `json:"message"`
	Identifier string `json:"identifier,omitempty"`
	Details    any    `json:"details,omitempty"`
}

// textWriter is implemented by report results that render themselves.
type textWriter interface {
	WriteText(w io.Writer) error
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	if tw, ok := data.(textWriter); ok {
		return tw.WriteText(f.Writer)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail writes err and returns it as an ExitError with the matching exit
// code, so commands can `return f.Fail(...)`.
func (f *OutputFormatter) Fail(message string, err error) error {
	var se *reconcile.SyncError
	if errors.As(err, &se) && f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:       string(se.Code),
				Message:    se.Message,
				Identifier: se.Identifier,
			},
		})
	} else {
		_ = f.Error(errorCodeOf(err), fmt.Sprintf("%s: %v", message, err), nil)
	}
	return WrapExitError(exitCodeOf(err), message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
