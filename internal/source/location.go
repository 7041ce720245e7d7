package source

import "fmt"

// FileID identifies a file registered with a FileManager.
type FileID uint32

// NoFile is the zero FileID; no registered file uses it.
const NoFile FileID = 0

// IsValid reports whether id refers to a registered file.
func (id FileID) IsValid() bool { return id != NoFile }

// Span is a half-open byte range [Start, End) within a file.
type Span struct {
	Start uint32
	End   uint32
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() uint32 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Contains reports whether other lies entirely within s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Location pins a span to a file. Two locations are equal only when both
// the file and the byte range match.
type Location struct {
	File FileID
	Span Span
}

// NewLocation builds a Location from byte offsets.
func NewLocation(file FileID, start, end uint32) Location {
	return Location{File: file, Span: Span{Start: start, End: end}}
}

func (l Location) String() string {
	return fmt.Sprintf("file %d @ %s", l.File, l.Span)
}
