package policydsl

import "fmt"

type valueKind int

const (
	valueString valueKind = iota
	valueBool
	valueIdent
	valueList
	valueCall
)

type value struct {
	kind    valueKind
	str     string
	boolean bool
	list    []value
	call    *callExpr
	line    int
}

type argument struct {
	name  string
	value value
	line  int
}

type callExpr struct {
	name string
	args []argument
	line int
}

// parser turns one policy source into its top-level statement calls. The
// grammar is pure configuration data: call statements with string, bool,
// list, and nested-call literals, plus bare matcher identifiers.
type parser struct {
	scanner *scanner
	current token
	source  string
}

func parseSource(source, input string) ([]callExpr, error) {
	p := &parser{scanner: newScanner(source, input), source: source}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var statements []callExpr
	for p.current.kind != tokenEOF {
		name, err := p.expect(tokenIdent, "statement name")
		if err != nil {
			return nil, err
		}
		statement, err := p.parseCall(name)
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
	return statements, nil
}

func (p *parser) advance() error {
	next, err := p.scanner.next()
	if err != nil {
		return err
	}
	p.current = next
	return nil
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", p.source, line, fmt.Sprintf(format, args...))
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.current.kind != kind {
		return token{}, p.errorf(p.current.line, "expected %s, found %q", what, p.current.text)
	}
	matched := p.current
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return matched, nil
}

// parseCall consumes "(...)" after an already-consumed name token.
func (p *parser) parseCall(name token) (callExpr, error) {
	if _, err := p.expect(tokenLeftParen, "("); err != nil {
		return callExpr{}, err
	}
	call := callExpr{name: name.text, line: name.line}
	for p.current.kind != tokenRightParen {
		arg, err := p.parseArgument()
		if err != nil {
			return callExpr{}, err
		}
		call.args = append(call.args, arg)
		if p.current.kind == tokenComma {
			if err := p.advance(); err != nil {
				return callExpr{}, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokenRightParen, ")"); err != nil {
		return callExpr{}, err
	}
	return call, nil
}

func (p *parser) parseArgument() (argument, error) {
	if p.current.kind == tokenIdent {
		name := p.current
		if err := p.advance(); err != nil {
			return argument{}, err
		}
		if p.current.kind == tokenEquals {
			if err := p.advance(); err != nil {
				return argument{}, err
			}
			parsed, err := p.parseValue()
			if err != nil {
				return argument{}, err
			}
			return argument{name: name.text, value: parsed, line: name.line}, nil
		}
		parsed, err := p.parseIdentValue(name)
		if err != nil {
			return argument{}, err
		}
		return argument{value: parsed, line: name.line}, nil
	}
	parsed, err := p.parseValue()
	if err != nil {
		return argument{}, err
	}
	return argument{value: parsed, line: parsed.line}, nil
}

func (p *parser) parseValue() (value, error) {
	switch p.current.kind {
	case tokenString:
		parsed := value{kind: valueString, str: p.current.text, line: p.current.line}
		if err := p.advance(); err != nil {
			return value{}, err
		}
		return parsed, nil
	case tokenIdent:
		name := p.current
		if err := p.advance(); err != nil {
			return value{}, err
		}
		return p.parseIdentValue(name)
	case tokenLeftBracket:
		return p.parseList()
	default:
		return value{}, p.errorf(p.current.line, "expected a value, found %q", p.current.text)
	}
}

// parseIdentValue resolves an identifier whose token is already consumed:
// True/False, a nested call when "(" follows, or a bare constant name.
func (p *parser) parseIdentValue(name token) (value, error) {
	switch name.text {
	case "True":
		return value{kind: valueBool, boolean: true, line: name.line}, nil
	case "False":
		return value{kind: valueBool, boolean: false, line: name.line}, nil
	}
	if p.current.kind == tokenLeftParen {
		call, err := p.parseCall(name)
		if err != nil {
			return value{}, err
		}
		return value{kind: valueCall, call: &call, line: name.line}, nil
	}
	return value{kind: valueIdent, str: name.text, line: name.line}, nil
}

func (p *parser) parseList() (value, error) {
	open, err := p.expect(tokenLeftBracket, "[")
	if err != nil {
		return value{}, err
	}
	list := value{kind: valueList, line: open.line}
	for p.current.kind != tokenRightBracket {
		element, err := p.parseValue()
		if err != nil {
			return value{}, err
		}
		list.list = append(list.list, element)
		if p.current.kind == tokenComma {
			if err := p.advance(); err != nil {
				return value{}, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokenRightBracket, "]"); err != nil {
		return value{}, err
	}
	return list, nil
}
