// Package commands implements the shell's command layer: a path-addressable
// registry of handlers, a textual invocation grammar with pipe chains, and a
// tracker that records every invocation as a CommandRun.
package commands

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Call is one parsed stage of an invocation: a resolved command path and its
// literal arguments. Raw preserves the stage text as typed.
type Call struct {
	Path string
	Args []any
	Raw  string
}

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z_][A-Za-z0-9_-]*)*$`)

// ValidPath reports whether s is a well-formed dot path.
func ValidPath(s string) bool {
	return pathPattern.MatchString(s)
}

// Parse splits a raw invocation into its chain stages. The grammar is
// "ns.path(arg, ...)" with "|" as the chain separator; arguments are quoted
// strings, numbers, booleans, null, JSON object/array literals, or bare
// words (kept as strings). A path without parentheses is a zero-argument
// call.
func Parse(raw string) ([]Call, error) {
	stages, err := splitChain(raw)
	if err != nil {
		return nil, err
	}

	if len(stages) == 0 {
		return nil, ErrEmptyInvocation
	}

	calls := make([]Call, 0, len(stages))

	for _, stage := range stages {
		call, err := parseCall(stage)
		if err != nil {
			return nil, err
		}

		calls = append(calls, call)
	}

	return calls, nil
}

// splitChain cuts the invocation at every top-level "|", respecting quotes
// and bracket nesting.
func splitChain(raw string) ([]string, error) {
	var (
		stages []string
		depth  int
		quote  byte
		start  int
	)

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}

			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '|':
			if depth == 0 {
				stages = append(stages, raw[start:i])
				start = i + 1
			}
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated string", ErrInvalidInvocation)
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced brackets", ErrInvalidInvocation)
	}

	stages = append(stages, raw[start:])

	out := make([]string, 0, len(stages))

	for _, stage := range stages {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			if len(stages) == 1 {
				return nil, ErrEmptyInvocation
			}

			return nil, fmt.Errorf("%w: empty chain stage", ErrInvalidInvocation)
		}

		out = append(out, stage)
	}

	return out, nil
}

func parseCall(stage string) (Call, error) {
	open := strings.IndexByte(stage, '(')
	if open == -1 {
		if !ValidPath(stage) {
			return Call{}, fmt.Errorf("%w: bad command path '%s'", ErrInvalidInvocation, stage)
		}

		return Call{Path: stage, Raw: stage}, nil
	}

	path := strings.TrimSpace(stage[:open])
	if !ValidPath(path) {
		return Call{}, fmt.Errorf("%w: bad command path '%s'", ErrInvalidInvocation, path)
	}

	if !strings.HasSuffix(strings.TrimSpace(stage), ")") {
		return Call{}, fmt.Errorf("%w: missing ')' in '%s'", ErrInvalidInvocation, stage)
	}

	inner := strings.TrimSpace(stage)
	inner = inner[open+1 : len(inner)-1]

	args, err := parseArgs(inner)
	if err != nil {
		return Call{}, err
	}

	return Call{Path: path, Args: args, Raw: stage}, nil
}

// parseArgs splits the argument list at top-level commas, then parses each
// piece as a literal.
func parseArgs(inner string) ([]any, error) {
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}

	var (
		pieces []string
		depth  int
		quote  byte
		start  int
	)

	for i := 0; i < len(inner); i++ {
		ch := inner[i]

		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}

			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				pieces = append(pieces, inner[start:i])
				start = i + 1
			}
		}
	}

	pieces = append(pieces, inner[start:])

	args := make([]any, 0, len(pieces))

	for _, piece := range pieces {
		value, err := parseLiteral(strings.TrimSpace(piece))
		if err != nil {
			return nil, err
		}

		args = append(args, value)
	}

	return args, nil
}

func parseLiteral(piece string) (any, error) {
	if piece == "" {
		return nil, fmt.Errorf("%w: empty argument", ErrInvalidInvocation)
	}

	switch piece[0] {
	case '\'', '"':
		return unquote(piece)
	case '{', '[':
		var value any

		if err := json.Unmarshal([]byte(piece), &value); err != nil {
			return nil, fmt.Errorf("%w: bad literal '%s': %s", ErrInvalidInvocation, piece, err)
		}

		return value, nil
	}

	switch piece {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if num, err := strconv.ParseFloat(piece, 64); err == nil {
		return num, nil
	}

	// Bare words pass through as strings.
	return piece, nil
}

func unquote(piece string) (string, error) {
	quote := piece[0]
	if len(piece) < 2 || piece[len(piece)-1] != quote {
		return "", fmt.Errorf("%w: unterminated string %s", ErrInvalidInvocation, piece)
	}

	body := piece[1 : len(piece)-1]

	var b strings.Builder

	for i := 0; i < len(body); i++ {
		ch := body[i]

		if ch != '\\' {
			b.WriteByte(ch)

			continue
		}

		i++
		if i >= len(body) {
			return "", fmt.Errorf("%w: dangling escape in %s", ErrInvalidInvocation, piece)
		}

		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(body[i])
		}
	}

	return b.String(), nil
}
