package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind names an exploration command.
type CommandKind string

const (
	CommandList CommandKind = "ls"
	CommandRead CommandKind = "cat"
	CommandTree CommandKind = "tree"
	CommandGrep CommandKind = "grep"
)

// Command is a parsed exploration request. Arguments are split on
// whitespace with no quoting; a grep pattern is the rest of the line.
type Command struct {
	Kind    CommandKind
	Path    string
	Depth   int
	Pattern string
	Raw     string
}

// UnknownCommandError reports an unrecognised command or a malformed
// argument list.
type UnknownCommandError struct {
	Command string
	Reason  string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Command, e.Reason)
}

// CommandUsage documents the accepted syntax.
const CommandUsage = "ls <path> | cat <path> | tree <path> <depth> | grep <path> <pattern>"

// ParseCommand parses one command line.
func ParseCommand(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, &UnknownCommandError{Command: line, Reason: "empty command; expected " + CommandUsage}
	}
	cmd := Command{Kind: CommandKind(fields[0]), Raw: raw}
	bad := func(reason string) (Command, error) {
		return Command{}, &UnknownCommandError{Command: raw, Reason: reason}
	}

	switch cmd.Kind {
	case CommandList, CommandRead:
		if len(fields) != 2 {
			return bad(fmt.Sprintf("%s takes exactly one path argument", cmd.Kind))
		}
		cmd.Path = fields[1]
	case CommandTree:
		if len(fields) != 3 {
			return bad("tree takes a path and a depth")
		}
		depth, err := strconv.Atoi(fields[2])
		if err != nil {
			return bad(fmt.Sprintf("tree depth %q is not an integer", fields[2]))
		}
		cmd.Path, cmd.Depth = fields[1], depth
	case CommandGrep:
		if len(fields) < 3 {
			return bad("grep takes a path and a pattern")
		}
		cmd.Path = fields[1]
		rest := strings.TrimSpace(raw[len(fields[0]):])
		cmd.Pattern = strings.TrimSpace(rest[len(fields[1]):])
	default:
		return bad("unknown command; expected " + CommandUsage)
	}
	return cmd, nil
}

// Label derives the conversation-state label for the command's output.
func (c Command) Label() string {
	switch c.Kind {
	case CommandList:
		return "LS_OUTPUT " + c.Path
	case CommandRead:
		return "CAT_OUTPUT " + c.Path
	case CommandTree:
		return fmt.Sprintf("TREE_OUTPUT %s %d", c.Path, c.Depth)
	case CommandGrep:
		return fmt.Sprintf("GREP_OUTPUT %s %s", c.Path, c.Pattern)
	default:
		return "OUTPUT " + c.Raw
	}
}
