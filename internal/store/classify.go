package store

import (
	"strings"
)

// statementKind decides how a statement is run. Whether rows come back is
// left to the driver; classify only picks the lock and rejects what cannot
// be run at all.
type statementKind struct {
	empty    bool
	multiple bool
	readOnly bool
}

func classify(statement string) statementKind {
	sc := scan(statement)
	if sc.tokens == 0 {
		return statementKind{empty: true}
	}
	if sc.trailing {
		return statementKind{multiple: true}
	}
	if len(sc.words) == 0 {
		return statementKind{}
	}

	switch sc.words[0] {
	case "SELECT", "VALUES", "EXPLAIN":
		return statementKind{readOnly: true}
	case "WITH":
		for _, w := range sc.words {
			switch w {
			case "INSERT", "UPDATE", "DELETE", "REPLACE":
				return statementKind{}
			}
		}
		return statementKind{readOnly: true}
	case "PRAGMA":
		// "PRAGMA x = y" changes state
		if sc.assigns {
			return statementKind{}
		}
		return statementKind{readOnly: true}
	}
	return statementKind{}
}

// scanned is what scan found outside quotes and comments
type scanned struct {
	words    []string // bare words, upper-cased
	tokens   int
	assigns  bool // an "=" appears
	trailing bool // something other than ";" follows the first ";"
}

// scan walks a statement the way SQLite tokenizes it, closely enough to tell
// keywords from literals, quoted identifiers and comments.
func scan(s string) scanned {
	var sc scanned
	ended := false
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			if idx := strings.IndexByte(s[i:], '\n'); idx >= 0 {
				i += idx + 1
			} else {
				i = len(s)
			}
			continue
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			if idx := strings.Index(s[i+2:], "*/"); idx >= 0 {
				i += idx + 4
			} else {
				i = len(s)
			}
			continue
		case isSpace(c):
			i++
			continue
		case c == ';':
			ended = true
			i++
			continue
		}

		if ended {
			sc.trailing = true
			return sc
		}
		sc.tokens++

		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(s, i, c)
		case c == '[':
			if idx := strings.IndexByte(s[i:], ']'); idx >= 0 {
				i += idx + 1
			} else {
				i = len(s)
			}
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			sc.words = append(sc.words, strings.ToUpper(s[i:j]))
			i = j
		default:
			if c == '=' {
				sc.assigns = true
			}
			i++
		}
	}
	return sc
}

// skipQuoted returns the index just past the quoted run starting at i. A
// doubled quote character is an escaped quote.
func skipQuoted(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != quote {
			continue
		}
		if j+1 < len(s) && s[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
