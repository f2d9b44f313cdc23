package patch

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"devloop/pkg/proto"
)

// parseDiffHunks reads unified diff text, with or without file headers.
// With headers, the file diff whose name matches target is used.
func parseDiffHunks(target, text string) ([]*diff.Hunk, error) {
	data := []byte(text)
	if !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("@@")) {
		hunks, err := diff.ParseHunks(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid diff: %w", target, err)
		}
		return hunks, nil
	}

	files, err := diff.ParseMultiFileDiff(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid diff: %w", target, err)
	}
	if len(files) == 1 {
		return files[0].Hunks, nil
	}
	for _, fd := range files {
		if diffName(fd.NewName) == path.Clean(target) || diffName(fd.OrigName) == path.Clean(target) {
			return fd.Hunks, nil
		}
	}
	return nil, fmt.Errorf("%s: diff has no section for this path", target)
}

func diffName(name string) string {
	name = strings.TrimPrefix(strings.TrimPrefix(name, "a/"), "b/")
	return path.Clean(name)
}

// hunksFromDiff converts a unified diff into the line-range hunk model and
// checks its context and removed lines against the current file.
func hunksFromDiff(target, text string, current []string) ([]proto.Hunk, error) {
	parsed, err := parseDiffHunks(target, text)
	if err != nil {
		return nil, err
	}

	out := make([]proto.Hunk, 0, len(parsed))
	for _, dh := range parsed {
		start := int(dh.OrigStartLine) - 1
		if dh.OrigLines == 0 {
			// "-N,0" inserts after line N.
			start = int(dh.OrigStartLine)
		}
		if start < 0 {
			start = 0
		}

		var oldLines, newLines []string
		body := strings.TrimSuffix(string(dh.Body), "\n")
		if body != "" {
			for _, line := range strings.Split(body, "\n") {
				switch {
				case line == "":
					oldLines = append(oldLines, "")
					newLines = append(newLines, "")
				case line[0] == ' ':
					oldLines = append(oldLines, line[1:])
					newLines = append(newLines, line[1:])
				case line[0] == '-':
					oldLines = append(oldLines, line[1:])
				case line[0] == '+':
					newLines = append(newLines, line[1:])
				}
			}
		}

		h := proto.Hunk{OldStart: start, OldLen: len(oldLines), NewLines: newLines}
		if h.End() > len(current) {
			return nil, &RangeError{Path: target, Hunk: h, LineCount: len(current)}
		}
		for i, want := range oldLines {
			if got := current[start+i]; got != want {
				return nil, &MismatchError{Path: target, Line: start + i + 1, Expected: want, Actual: got}
			}
		}
		if newLines == nil {
			h.NewLines = []string{}
		}
		out = append(out, h)
	}
	return out, nil
}
