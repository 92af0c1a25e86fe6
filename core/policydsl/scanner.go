package policydsl

import "fmt"

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenLeftParen
	tokenRightParen
	tokenLeftBracket
	tokenRightBracket
	tokenComma
	tokenEquals
)

type token struct {
	kind tokenKind
	text string
	line int
}

type scanner struct {
	source string
	input  string
	index  int
	line   int
}

func newScanner(source, input string) *scanner {
	return &scanner{source: source, input: input, line: 1}
}

func (s *scanner) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", s.source, line, fmt.Sprintf(format, args...))
}

func (s *scanner) next() (token, error) {
	s.skipIgnored()
	if s.index >= len(s.input) {
		return token{kind: tokenEOF, line: s.line}, nil
	}
	start := s.line
	c := s.input[s.index]
	switch c {
	case '(':
		s.index++
		return token{kind: tokenLeftParen, text: "(", line: start}, nil
	case ')':
		s.index++
		return token{kind: tokenRightParen, text: ")", line: start}, nil
	case '[':
		s.index++
		return token{kind: tokenLeftBracket, text: "[", line: start}, nil
	case ']':
		s.index++
		return token{kind: tokenRightBracket, text: "]", line: start}, nil
	case ',':
		s.index++
		return token{kind: tokenComma, text: ",", line: start}, nil
	case '=':
		s.index++
		return token{kind: tokenEquals, text: "=", line: start}, nil
	case '"', '\'':
		return s.scanString(c)
	}
	if identStart(c) {
		return s.scanIdent(), nil
	}
	return token{}, s.errorf(start, "unexpected character %q", string(c))
}

func (s *scanner) skipIgnored() {
	for s.index < len(s.input) {
		c := s.input[s.index]
		switch {
		case c == '\n':
			s.line++
			s.index++
		case c == ' ' || c == '\t' || c == '\r':
			s.index++
		case c == '#':
			for s.index < len(s.input) && s.input[s.index] != '\n' {
				s.index++
			}
		default:
			return
		}
	}
}

func (s *scanner) scanIdent() token {
	start := s.index
	for s.index < len(s.input) && identPart(s.input[s.index]) {
		s.index++
	}
	return token{kind: tokenIdent, text: s.input[start:s.index], line: s.line}
}

func (s *scanner) scanString(quote byte) (token, error) {
	startLine := s.line
	s.index++
	var text []byte
	for s.index < len(s.input) {
		c := s.input[s.index]
		switch c {
		case quote:
			s.index++
			return token{kind: tokenString, text: string(text), line: startLine}, nil
		case '\n':
			return token{}, s.errorf(startLine, "unterminated string")
		case '\\':
			s.index++
			if s.index >= len(s.input) {
				return token{}, s.errorf(startLine, "unterminated string")
			}
			escape := s.input[s.index]
			switch escape {
			case '\\', '"', '\'':
				text = append(text, escape)
			case 'n':
				text = append(text, '\n')
			case 't':
				text = append(text, '\t')
			case 'r':
				text = append(text, '\r')
			default:
				return token{}, s.errorf(startLine, "invalid escape \\%s in string", string(escape))
			}
			s.index++
		default:
			text = append(text, c)
			s.index++
		}
	}
	return token{}, s.errorf(startLine, "unterminated string")
}

func identStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func identPart(c byte) bool {
	return identStart(c) || c >= '0' && c <= '9'
}
