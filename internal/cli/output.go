package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/ruleerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rule failure, invalid rule, failed scenario
	ExitCommandError = 2 // Command error (bad flags, missing files, invalid context)
)

// Error codes for failures outside the rule error taxonomy.
const (
	ErrCodeGeneric  = "ERROR"
	ErrCodeConfig   = "CONFIG"
	ErrCodeRuleSet  = "RULESET"
	ErrCodeScenario = "SCENARIO"
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // taxonomy code, e.g. "UNRESOLVED_COLUMN"
	Message string `json:"message"`           // human-readable message
	Subject string `json:"subject,omitempty"` // offending text or key
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt; callers with structured results print
// their own text and use Success for JSON only.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.report(&CLIError{Code: code, Message: message, Details: details}, nil)
}

// Failure outputs err, classified by its taxonomy code, with an optional
// partial payload.
func (f *OutputFormatter) Failure(err error, data any) error {
	return f.report(describe(err), data)
}

func (f *OutputFormatter) report(e *CLIError, data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Data: data, Error: e})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Subject != "" {
		fmt.Fprintf(f.Writer, "  at: %s\n", e.Subject)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
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

// describe maps err to a CLIError. Taxonomy errors keep their code and
// subject; anything else is ERROR with the full message.
func describe(err error) *CLIError {
	var re *ruleerr.Error
	if errors.As(err, &re) {
		return &CLIError{Code: string(re.Code), Message: err.Error(), Subject: re.Subject}
	}
	if errors.Is(err, engine.ErrClosed) {
		return &CLIError{Code: "CLOSED", Message: err.Error()}
	}
	return &CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}

// exitCodeFor classifies an evaluation error. Problems with the caller's
// input (context, store kind, missing store) are command errors; the rest
// are rule failures.
func exitCodeFor(err error) int {
	switch ruleerr.CodeOf(err) {
	case ruleerr.InvalidContext, ruleerr.UnsupportedStoreKind, ruleerr.StoreNotFound, ruleerr.MalformedTriples:
		return ExitCommandError
	}
	return ExitFailure
}
