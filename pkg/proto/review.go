package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity grades a review comment.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ReviewComment anchors a finding to an inclusive line range.
type ReviewComment struct {
	Path      string   `json:"path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Comment   string   `json:"comment"`
	Severity  Severity `json:"severity"`
}

// Review is the reviewer's terminal result.
type Review struct {
	Comments []ReviewComment `json:"comments"`
}

type commentWire struct {
	Path      string `json:"path" validate:"required"`
	StartLine *int   `json:"start_line" validate:"required,gte=0"`
	EndLine   *int   `json:"end_line" validate:"required,gte=0"`
	Comment   string `json:"comment" validate:"required"`
	Severity  string `json:"severity" validate:"required,oneof=info warning error"`
}

type reviewWire struct {
	Comments *[]commentWire `json:"comments" validate:"required,dive"`
}

// DecodeReview decodes and validates a reviewer's complete reply.
func DecodeReview(raw []byte) (Review, error) {
	var w reviewWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Review{}, malformed("invalid review", err)
	}
	if err := checkSchema(&w); err != nil {
		return Review{}, malformed("invalid review", err)
	}

	review := Review{Comments: make([]ReviewComment, 0, len(*w.Comments))}
	for i, c := range *w.Comments {
		if *c.StartLine > *c.EndLine {
			return Review{}, malformed(fmt.Sprintf("comments[%d]: start_line %d is after end_line %d", i, *c.StartLine, *c.EndLine), nil)
		}
		review.Comments = append(review.Comments, ReviewComment{
			Path:      c.Path,
			StartLine: *c.StartLine,
			EndLine:   *c.EndLine,
			Comment:   c.Comment,
			Severity:  Severity(c.Severity),
		})
	}
	return review, nil
}

// Blocking reports whether any comment has error severity.
func (r Review) Blocking() bool {
	for i := range r.Comments {
		if r.Comments[i].Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity comments.
func (r Review) Errors() []ReviewComment {
	var out []ReviewComment
	for i := range r.Comments {
		if r.Comments[i].Severity == SeverityError {
			out = append(out, r.Comments[i])
		}
	}
	return out
}

// ErrorSummary renders the blocking comments, one per line.
func (r Review) ErrorSummary() string {
	var b strings.Builder
	for _, c := range r.Errors() {
		fmt.Fprintf(&b, "- %s:%d-%d: %s\n", c.Path, c.StartLine, c.EndLine, c.Comment)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
