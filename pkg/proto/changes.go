package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ChangeSet is the developer's terminal result.
type ChangeSet struct {
	CommitMessage string       `json:"commit_message" validate:"required"`
	Changes       []FileChange `json:"changes" validate:"dive"`
}

// FileChange targets one repository-relative path.
type FileChange struct {
	Path  string    `json:"path" validate:"required"`
	Patch PatchBody `json:"patch"`
}

// PatchBody holds exactly one of full Content, line Hunks, or a unified Diff.
type PatchBody struct {
	Content *string
	Hunks   []Hunk
	Diff    string
}

// PatchKind identifies which PatchBody variant is set.
type PatchKind int

const (
	PatchContent PatchKind = iota
	PatchHunks
	PatchDiff
)

func (k PatchKind) String() string {
	switch k {
	case PatchContent:
		return "content"
	case PatchHunks:
		return "hunks"
	case PatchDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// Kind reports the variant. Hunks is the default for an empty body.
func (p PatchBody) Kind() PatchKind {
	switch {
	case p.Content != nil:
		return PatchContent
	case p.Diff != "":
		return PatchDiff
	default:
		return PatchHunks
	}
}

// FullContent builds a full-replacement body.
func FullContent(text string) PatchBody {
	return PatchBody{Content: &text}
}

type patchObject struct {
	Content *string            `json:"content"`
	Hunks   *[]json.RawMessage `json:"hunks"`
	Diff    *string            `json:"diff"`
}

// UnmarshalJSON accepts a bare string (full content) or an object with
// exactly one of "content", "hunks", "diff".
func (p *PatchBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return errors.New("patch is required")
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("patch string: %w", err)
		}
		*p = FullContent(text)
		return nil
	}

	var obj patchObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("patch must be a string or an object: %w", err)
	}
	set := 0
	for _, present := range []bool{obj.Content != nil, obj.Hunks != nil, obj.Diff != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf(`patch must set exactly one of "content", "hunks", "diff" (got %d)`, set)
	}

	switch {
	case obj.Content != nil:
		*p = FullContent(*obj.Content)
	case obj.Diff != nil:
		if *obj.Diff == "" {
			return errors.New(`patch "diff" is empty`)
		}
		*p = PatchBody{Diff: *obj.Diff}
	default:
		hunks := make([]Hunk, 0, len(*obj.Hunks))
		for i, raw := range *obj.Hunks {
			var h Hunk
			if err := json.Unmarshal(raw, &h); err != nil {
				return fmt.Errorf("hunks[%d]: %w", i, err)
			}
			hunks = append(hunks, h)
		}
		*p = PatchBody{Hunks: hunks}
	}
	return nil
}

// MarshalJSON writes the object form.
func (p PatchBody) MarshalJSON() ([]byte, error) {
	var v any
	switch p.Kind() {
	case PatchContent:
		v = map[string]string{"content": *p.Content}
	case PatchDiff:
		v = map[string]string{"diff": p.Diff}
	default:
		hunks := p.Hunks
		if hunks == nil {
			hunks = []Hunk{}
		}
		v = map[string][]Hunk{"hunks": hunks}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	return data, nil
}

// Hunk replaces lines [OldStart, OldStart+OldLen) of the current file
// (0-indexed) with NewLines.
type Hunk struct {
	OldStart int      `json:"old_start"`
	OldLen   int      `json:"old_len"`
	NewLines []string `json:"new_lines"`
}

type hunkWire struct {
	OldStart *int      `json:"old_start" validate:"required,gte=0"`
	OldLen   *int      `json:"old_len" validate:"required,gte=0"`
	NewLines *[]string `json:"new_lines"`
	Lines    *[]string `json:"lines"`
}

// UnmarshalJSON requires non-negative old_start and old_len and accepts
// "lines" as an alias for "new_lines".
func (h *Hunk) UnmarshalJSON(data []byte) error {
	var w hunkWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("hunk: %w", err)
	}
	if err := checkSchema(&w); err != nil {
		return err
	}
	lines := w.NewLines
	if lines == nil {
		lines = w.Lines
	}
	if lines == nil {
		return errors.New("new_lines is required")
	}
	*h = Hunk{OldStart: *w.OldStart, OldLen: *w.OldLen, NewLines: *lines}
	return nil
}

// End returns the exclusive end of the replaced range.
func (h Hunk) End() int {
	return h.OldStart + h.OldLen
}

type fileChangeWire struct {
	Path  string     `json:"path"`
	Patch *PatchBody `json:"patch"`
}

type changeSetWire struct {
	CommitMessage string            `json:"commit_message"`
	Changes       *[]fileChangeWire `json:"changes"`
}

// DecodeChangeSet decodes and validates a developer's complete reply.
func DecodeChangeSet(raw []byte) (ChangeSet, error) {
	var w changeSetWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return ChangeSet{}, malformed("invalid change set", err)
	}
	if w.Changes == nil {
		return ChangeSet{}, malformed(`missing "changes" list`, nil)
	}
	cs := ChangeSet{CommitMessage: w.CommitMessage, Changes: make([]FileChange, 0, len(*w.Changes))}
	for i, c := range *w.Changes {
		if c.Patch == nil {
			return ChangeSet{}, malformed(fmt.Sprintf("changes[%d].patch is required", i), nil)
		}
		cs.Changes = append(cs.Changes, FileChange{Path: c.Path, Patch: *c.Patch})
	}
	if err := checkSchema(&cs); err != nil {
		return ChangeSet{}, malformed("invalid change set", err)
	}
	return cs, nil
}
