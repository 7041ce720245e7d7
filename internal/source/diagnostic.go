package source

import (
	"errors"
	"fmt"
	"strings"
)

// Severity orders diagnostics; lower values are more severe.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

var severityNames = [...]string{
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityInfo:    "info",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Diagnostic is a problem found while parsing or compiling a file.
type Diagnostic struct {
	Severity Severity
	Code     string // e.g. "syntax", "unresolved-import"
	Message  string
	Location Location
}

// Render formats the diagnostic as "[severity] path:line:col: message",
// omitting the position when the location has no file.
func (d Diagnostic) Render(fm *FileManager) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(d.Severity.String())
	b.WriteString("] ")
	if fm != nil && d.Location.File.IsValid() {
		line, col := fm.Position(d.Location)
		fmt.Fprintf(&b, "%s:%d:%d: ", fm.Path(d.Location.File), line, col)
	}
	b.WriteString(d.Message)
	return b.String()
}

func (d Diagnostic) String() string {
	return d.Render(nil)
}

// Renderer is implemented by errors that can name their locations by path
// and line once a FileManager is available.
type Renderer interface {
	Render(fm *FileManager) string
}

// RenderError replaces the message of err with the rendering of the first
// Renderer in its chain. The result still unwraps to err.
func RenderError(fm *FileManager, err error) error {
	var r Renderer
	if fm == nil || !errors.As(err, &r) {
		return err
	}
	return &renderedError{msg: r.Render(fm), err: err}
}

type renderedError struct {
	msg string
	err error
}

func (e *renderedError) Error() string { return e.msg }
func (e *renderedError) Unwrap() error { return e.err }

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
