// Package contextmgr holds the per-task conversation state shared by the
// developer and reviewer roles: an insertion-ordered, append-only label→text
// memory plus a short-lived request/reply history.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"

	"devloop/pkg/utils"
)

// Entry is one labelled piece of accumulated context.
type Entry struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Exchange is a prior (request, reply) pair within one exploration round.
type Exchange struct {
	Request string `json:"request"`
	Reply   string `json:"reply"`
}

// State is owned by a single task run and is not safe for concurrent use.
type State struct {
	order   []string
	entries map[string]string
	history []Exchange
	epoch   int
}

// NewState returns an empty state.
func NewState() *State {
	return &State{entries: make(map[string]string)}
}

// Put records text under label. A label is written at most once: Put on an
// existing label leaves the original text and returns false.
func (s *State) Put(label, text string) bool {
	if _, exists := s.entries[label]; exists {
		return false
	}
	s.order = append(s.order, label)
	s.entries[label] = text
	return true
}

// Get returns the text stored under label.
func (s *State) Get(label string) (string, bool) {
	text, ok := s.entries[label]
	return text, ok
}

// Len returns the number of labelled entries.
func (s *State) Len() int {
	return len(s.order)
}

// Entries returns a copy of all entries in insertion order.
func (s *State) Entries() []Entry {
	out := make([]Entry, len(s.order))
	for i, label := range s.order {
		out[i] = Entry{Label: label, Text: s.entries[label]}
	}
	return out
}

// AppendExchange records a request and the raw reply it produced.
func (s *State) AppendExchange(request, reply string) {
	s.history = append(s.history, Exchange{Request: request, Reply: reply})
}

// History returns a copy of the current exchanges.
func (s *State) History() []Exchange {
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory drops the exchanges; labelled entries are kept.
func (s *State) ClearHistory() {
	s.history = nil
}

// Epoch is the number of change sets applied to the working tree so far.
func (s *State) Epoch() int {
	return s.epoch
}

// BumpEpoch marks that the working tree changed. Labels derived afterwards
// get a revision suffix so fresh reads land under new labels.
func (s *State) BumpEpoch() int {
	s.epoch++
	return s.epoch
}

// Label qualifies a command-derived label with the current revision.
func (s *State) Label(base string) string {
	if s.epoch == 0 {
		return base
	}
	return fmt.Sprintf("%s @rev%d", base, s.epoch)
}

// Render formats the entries for a remote call.
func (s *State) Render() string {
	if len(s.order) == 0 {
		return "(no context gathered yet)"
	}
	var b strings.Builder
	for i, label := range s.order {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", label, s.entries[label])
	}
	return b.String()
}

// Tokens estimates the prompt size of the entries plus history.
func (s *State) Tokens() int {
	total := utils.CountTokensSimple(s.Render())
	for _, ex := range s.history {
		total += utils.CountTokensSimple(ex.Request) + utils.CountTokensSimple(ex.Reply)
	}
	return total
}

type snapshot struct {
	Epoch   int        `json:"epoch"`
	Entries []Entry    `json:"entries"`
	History []Exchange `json:"history,omitempty"`
}

// MarshalJSON serialises the state with entries in insertion order.
func (s *State) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(snapshot{Epoch: s.epoch, Entries: s.Entries(), History: s.history})
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}
