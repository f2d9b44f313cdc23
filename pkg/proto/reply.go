// Package proto defines the wire contract between devloop and its agents:
// the two-variant structured reply, exploration commands, change sets and
// review comments, with schema validation.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reply status tags.
const (
	StatusComplete     = "complete"
	StatusNeedMoreInfo = "need_more_info"
)

// StructuredReply is a sealed union of NeedMoreInfo[T] and Complete[T].
// Callers match it with a type switch over exactly those two variants.
type StructuredReply[T any] interface {
	isReply(T)
}

// NeedMoreInfo asks the loop to run exploration commands.
type NeedMoreInfo[T any] struct {
	Commands []string
}

func (NeedMoreInfo[T]) isReply(T) {}

// Complete carries the role's terminal, validated result.
type Complete[T any] struct {
	Result T
}

func (Complete[T]) isReply(T) {}

// Decoder turns a complete reply's JSON object into a validated result.
type Decoder[T any] func(raw []byte) (T, error)

// MalformedReplyError reports a reply that could not be parsed or failed
// schema validation. The loop turns it into a corrective instruction.
type MalformedReplyError struct {
	Reason string
	Err    error
}

func (e *MalformedReplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed reply: %s: %v", e.Reason, e.Err)
	}
	return "malformed reply: " + e.Reason
}

func (e *MalformedReplyError) Unwrap() error {
	return e.Err
}

func malformed(reason string, err error) error {
	return &MalformedReplyError{Reason: reason, Err: err}
}

// IsMalformed reports whether err is a MalformedReplyError.
func IsMalformed(err error) bool {
	var m *MalformedReplyError
	return errors.As(err, &m)
}

type envelope struct {
	Status   *string   `json:"status"`
	Commands *[]string `json:"commands"`
}

// ParseReply parses raw model output into a StructuredReply. Markdown code
// fences and prose around a single JSON object are tolerated.
func ParseReply[T any](raw string, decode Decoder[T]) (StructuredReply[T], error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, malformed("reply is not a JSON object", err)
	}
	if env.Status == nil {
		return nil, malformed(`missing "status" field`, nil)
	}

	switch *env.Status {
	case StatusNeedMoreInfo:
		if env.Commands == nil || len(*env.Commands) == 0 {
			return nil, malformed(`"need_more_info" requires a non-empty "commands" list`, nil)
		}
		return NeedMoreInfo[T]{Commands: *env.Commands}, nil
	case StatusComplete:
		result, err := decode([]byte(body))
		if err != nil {
			if IsMalformed(err) {
				return nil, err
			}
			return nil, malformed("invalid complete reply", err)
		}
		return Complete[T]{Result: result}, nil
	default:
		return nil, malformed(fmt.Sprintf("unknown status %q (want %q or %q)", *env.Status, StatusComplete, StatusNeedMoreInfo), nil)
	}
}

// ExtractJSON strips code fences and surrounding prose, returning the
// outermost JSON object in raw.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", malformed("empty reply", nil)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s, nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", malformed("no JSON object found in reply", nil)
	}
	return s[start : end+1], nil
}
