// Package patch validates and applies agent change sets to the working tree.
package patch

import (
	"sort"
	"strings"

	"devloop/pkg/proto"
)

// Document is file text split into lines, remembering the final newline.
type Document struct {
	Lines           []string
	TrailingNewline bool
}

// SplitLines splits text on "\n". Empty text has no lines and will gain a
// trailing newline if lines are added.
func SplitLines(text string) Document {
	if text == "" {
		return Document{TrailingNewline: true}
	}
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = text[:len(text)-1]
	}
	return Document{Lines: strings.Split(text, "\n"), TrailingNewline: trailing}
}

// String joins the lines back into file text.
func (d Document) String() string {
	if len(d.Lines) == 0 {
		return ""
	}
	s := strings.Join(d.Lines, "\n")
	if d.TrailingNewline {
		s += "\n"
	}
	return s
}

// CheckHunks validates hunks against a file of lineCount lines without
// applying them. path only labels errors.
func CheckHunks(path string, lineCount int, hunks []proto.Hunk) error {
	for _, h := range hunks {
		if h.OldStart < 0 || h.OldLen < 0 || h.End() > lineCount {
			return &RangeError{Path: path, Hunk: h, LineCount: lineCount}
		}
	}

	sorted := make([]proto.Hunk, len(hunks))
	copy(sorted, hunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OldStart < sorted[j].OldStart })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.OldStart < prev.End() || cur.OldStart == prev.OldStart {
			return &OverlapError{Path: path, First: prev, Second: cur}
		}
	}
	return nil
}

// ApplyHunks returns lines with every hunk spliced in. Hunks are applied
// from the highest OldStart down so earlier offsets never shift. The input
// slice is not modified.
func ApplyHunks(path string, lines []string, hunks []proto.Hunk) ([]string, error) {
	if err := CheckHunks(path, len(lines), hunks); err != nil {
		return nil, err
	}

	ordered := make([]proto.Hunk, len(hunks))
	copy(ordered, hunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OldStart > ordered[j].OldStart })

	out := make([]string, len(lines))
	copy(out, lines)
	for _, h := range ordered {
		next := make([]string, 0, len(out)-h.OldLen+len(h.NewLines))
		next = append(next, out[:h.OldStart]...)
		next = append(next, h.NewLines...)
		next = append(next, out[h.End():]...)
		out = next
	}
	return out, nil
}
