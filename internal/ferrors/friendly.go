// Package ferrors wraps low-level errors in actionable, user-facing
// messages: a short explanation plus a concrete suggestion, built by
// string-matching the wrapped error to pick the right guidance for
// network, repository, path, and configuration failures.
package ferrors

import (
	"fmt"
	"strings"
)

// UserFriendlyError carries an actionable message alongside the
// underlying error it was built from.
type UserFriendlyError struct {
	Message    string
	Suggestion string
	DocsLink   string
	Details    error
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Suggestion != "" {
		sb.WriteString("\n\nHow to fix:\n")
		sb.WriteString(e.Suggestion)
	}
	if e.DocsLink != "" {
		sb.WriteString("\n\nDocumentation: ")
		sb.WriteString(e.DocsLink)
	}
	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Details
}

// New creates a user-friendly error with no underlying cause.
func New(message, suggestion string) *UserFriendlyError {
	return &UserFriendlyError{Message: message, Suggestion: suggestion}
}

func (e *UserFriendlyError) WithDetails(err error) *UserFriendlyError {
	e.Details = err
	return e
}

func (e *UserFriendlyError) WithDocs(link string) *UserFriendlyError {
	e.DocsLink = link
	return e
}

// Network wraps a urlfetch transport failure.
func Network(err error) *UserFriendlyError {
	msg := "Network error occurred while fetching the file"
	suggestion := "Check connectivity between the device and the URL host and try again"

	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "name resolution"):
			msg = "Cannot resolve hostname - DNS lookup failed"
			suggestion = "1. Check the device's DNS configuration\n2. Verify the URL's host is reachable\n3. Try: ping <host>"
		case strings.Contains(errStr, "connection refused"):
			msg = "Server refused the connection"
			suggestion = "The file server may be down or blocking the request. Try again later."
		case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
			msg = "Download timed out"
			suggestion = "The server is slow or unreachable. Try:\n1. Increase network.timeout_seconds\n2. Check the link between device and server\n3. Try again later"
		case strings.Contains(errStr, "certificate") || strings.Contains(errStr, "x509"):
			msg = "TLS certificate verification failed"
			suggestion = "The server's certificate could not be validated. If this is expected for your deployment, set network.tls_verify: false (insecure)."
		}
	}

	return &UserFriendlyError{Message: msg, Suggestion: suggestion, Details: err}
}

// Database wraps a repository (SQLite) failure.
func Database(err error) *UserFriendlyError {
	msg := "Repository database error"
	suggestion := "Check general.data_root is writable and retry"

	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "locked") {
			msg = "Repository database is locked by another process"
			suggestion = "Stop any other running instance of this connector and try again"
		}
		if strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed") {
			msg = "Repository database is corrupted"
			suggestion = "Back up and remove the database file, then let it be recreated:\n" +
				"1. cp <data_root>/repository.db <data_root>/repository.db.backup\n" +
				"2. rm <data_root>/repository.db"
		}
	}

	return &UserFriendlyError{Message: msg, Suggestion: suggestion, Details: err}
}

// Path wraps a filesystem error on a configured root or marker path.
func Path(path string, err error) *UserFriendlyError {
	msg := fmt.Sprintf("Path error: %s", path)
	suggestion := "Check that the path exists and this process has permission to access it"

	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "permission denied"):
			msg = fmt.Sprintf("Permission denied: %s", path)
			suggestion = fmt.Sprintf("Grant write permission:\n  chmod u+w %s", path)
		case strings.Contains(errStr, "no such file or directory"):
			msg = fmt.Sprintf("Directory does not exist: %s", path)
			suggestion = fmt.Sprintf("Create the directory:\n  mkdir -p %s", path)
		case strings.Contains(errStr, "not a directory"):
			msg = fmt.Sprintf("Path exists but is not a directory: %s", path)
			suggestion = "Remove the file or choose a different path"
		}
	}

	return &UserFriendlyError{Message: msg, Suggestion: suggestion, Details: err}
}

// Config wraps a single configuration field validation failure.
func Config(field, issue string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Configuration error in field '%s': %s", field, issue),
		Suggestion: "Correct the field in the config file and run the command again",
	}
}
