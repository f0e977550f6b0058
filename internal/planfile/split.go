package planfile

import (
	"fmt"
	"strings"
)

// SplitStatements breaks SQL text into individual statements. Comments are
// removed, semicolons inside quoted text are kept, and a CREATE TRIGGER body
// runs until its closing END.
func SplitStatements(content string) ([]string, error) {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case c == '-' && next == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')

		case c == '/' && next == '*':
			end := i + 2
			for end+1 < len(runes) && !(runes[end] == '*' && runes[end+1] == '/') {
				end++
			}
			if end+1 >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated block comment", ErrInvalidStepFile)
			}
			i = end + 1
			current.WriteRune(' ')

		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(runes, i)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrInvalidStepFile)
			}
			current.WriteString(string(runes[i : end+1]))
			i = end

		case c == '[':
			end := i + 1
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated bracket identifier", ErrInvalidStepFile)
			}
			current.WriteString(string(runes[i : end+1]))
			i = end

		case c == ';':
			stmt := strings.TrimSpace(current.String())
			if isTrigger(stmt) && !endsWithEnd(stmt) {
				current.WriteRune(c)
				continue
			}
			flush()

		default:
			current.WriteRune(c)
		}
	}

	if rest := strings.TrimSpace(current.String()); isTrigger(rest) && !endsWithEnd(rest) {
		return nil, fmt.Errorf("%w: trigger body is not terminated by END", ErrInvalidStepFile)
	}
	flush()

	return statements, nil
}

// closingQuote returns the index of the quote closing the one at start. A
// doubled quote character is an escaped quote.
func closingQuote(runes []rune, start int) int {
	quote := runes[start]
	for j := start + 1; j < len(runes); j++ {
		if runes[j] != quote {
			continue
		}
		if j+1 < len(runes) && runes[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return -1
}

func isTrigger(stmt string) bool {
	words := strings.Fields(strings.ToUpper(stmt))
	if len(words) < 2 || words[0] != "CREATE" {
		return false
	}
	for _, word := range words[1:min(len(words), 4)] {
		if word == "TRIGGER" {
			return true
		}
	}
	return false
}

func endsWithEnd(stmt string) bool {
	upper := strings.ToUpper(stmt)
	if !strings.HasSuffix(upper, "END") {
		return false
	}
	if len(upper) == 3 {
		return true
	}
	prev := upper[len(upper)-4]
	return !(prev == '_' || (prev >= 'A' && prev <= 'Z') || (prev >= '0' && prev <= '9'))
}
