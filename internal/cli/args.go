package cli

import (
	"errors"
	"strconv"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// splitArgs splits on whitespace. Double or single quotes group words and a
// backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

// joinRFC lets "RFC 123" be typed without quotes.
func joinRFC(args []string) []string {
	if len(args) < 2 || !strings.EqualFold(args[0], "RFC") {
		return args
	}
	if _, err := strconv.Atoi(args[1]); err != nil {
		return args
	}
	joined := append([]string{"RFC " + args[1]}, args[2:]...)
	return joined
}
