package patch

import (
	"fmt"
	"strings"

	"devloop/pkg/proto"
)

// RangeError reports a hunk reaching past the end of the current file.
type RangeError struct {
	Path      string
	Hunk      proto.Hunk
	LineCount int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: hunk range [%d, %d) exceeds file length %d",
		e.Path, e.Hunk.OldStart, e.Hunk.End(), e.LineCount)
}

// OverlapError reports two hunks whose old ranges intersect, or that insert
// at the same offset.
type OverlapError struct {
	Path   string
	First  proto.Hunk
	Second proto.Hunk
}

// Ambiguous reports a zero-length hunk sharing its offset with another hunk.
// The ranges do not intersect but the order of the insertions is undefined.
func (e *OverlapError) Ambiguous() bool {
	return e.First.OldStart == e.Second.OldStart && (e.First.OldLen == 0 || e.Second.OldLen == 0)
}

func (e *OverlapError) Error() string {
	if e.Ambiguous() {
		return fmt.Sprintf("%s: ambiguous insertion at line %d: hunks [%d, %d) and [%d, %d) both start there",
			e.Path, e.First.OldStart, e.First.OldStart, e.First.End(), e.Second.OldStart, e.Second.End())
	}
	return fmt.Sprintf("%s: hunk range [%d, %d) overlaps hunk range [%d, %d)",
		e.Path, e.First.OldStart, e.First.End(), e.Second.OldStart, e.Second.End())
}

// MismatchError reports a unified diff whose context or removed lines do
// not match the current file.
type MismatchError struct {
	Path     string
	Line     int // 1-based
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: diff expects line %d to be %q but the file has %q",
		e.Path, e.Line, e.Expected, e.Actual)
}

// FileFailure is a rejected change for one path.
type FileFailure struct {
	Path string
	Err  error
}

// Failure is returned when any change in a round is rejected. Nothing in the
// round has been written.
type Failure struct {
	Files []FileFailure
}

func (f *Failure) Error() string {
	parts := make([]string, 0, len(f.Files))
	for _, ff := range f.Files {
		parts = append(parts, ff.Err.Error())
	}
	return "patch rejected: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-file causes to errors.Is/As.
func (f *Failure) Unwrap() []error {
	out := make([]error, 0, len(f.Files))
	for _, ff := range f.Files {
		out = append(out, ff.Err)
	}
	return out
}

// Feedback renders the failure as an instruction for the developer role.
func (f *Failure) Feedback() string {
	var b strings.Builder
	b.WriteString("Your patch was rejected and no files were changed. Fix these problems and resubmit the complete change set:\n")
	for _, ff := range f.Files {
		fmt.Fprintf(&b, "- %s\n", ff.Err.Error())
	}
	b.WriteString("Hunk offsets are 0-indexed line numbers in the file as it is now; hunks for one file must not overlap.")
	return b.String()
}
