package shellsplit

import (
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Decompose extracts the literal inner commands of an inline shell script.
// The argv must be a recognized shell in -c form with exactly one script
// argument; the script must reduce to plain commands joined by &&, ||, ;,
// newlines, or |. Anything else returns the original argv as one opaque
// command. Falling back never fails, it only loses precision.
func Decompose(argv []string) [][]string {
	opaque := [][]string{argv}
	script, ok := inlineScript(argv)
	if !ok {
		return opaque
	}
	commands, ok := parseScript(script)
	if !ok || len(commands) == 0 {
		return opaque
	}
	return commands
}

// inlineScript recognizes the -c invocation shapes: `sh -c script`,
// `sh -lc script`, and the spelled-out login form `sh -l -c script`.
func inlineScript(argv []string) (string, bool) {
	if len(argv) == 0 || !recognizedShell(argv[0]) {
		return "", false
	}
	switch {
	case len(argv) == 3 && (argv[1] == "-c" || argv[1] == "-lc"):
		return argv[2], true
	case len(argv) == 4 && argv[1] == "-l" && argv[2] == "-c":
		return argv[3], true
	}
	return "", false
}

func recognizedShell(token string) bool {
	switch filepath.Base(token) {
	case "bash", "sh", "zsh":
		return true
	default:
		return false
	}
}

func parseScript(script string) ([][]string, bool) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, false
	}
	var commands [][]string
	for _, stmt := range file.Stmts {
		if !flattenStmt(stmt, &commands) {
			return nil, false
		}
	}
	return commands, true
}

// flattenStmt appends the plain commands under stmt in execution order.
// Negation, backgrounding, redirections, assignments, and every compound
// construct except &&/||/| chains make the whole script opaque.
func flattenStmt(stmt *syntax.Stmt, commands *[][]string) bool {
	if stmt == nil || stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return false
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 || len(cmd.Args) == 0 {
			return false
		}
		tokens := make([]string, 0, len(cmd.Args))
		for _, word := range cmd.Args {
			token, ok := literalWord(word)
			if !ok {
				return false
			}
			tokens = append(tokens, token)
		}
		*commands = append(*commands, tokens)
		return true
	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.AndStmt, syntax.OrStmt, syntax.Pipe:
			return flattenStmt(cmd.X, commands) && flattenStmt(cmd.Y, commands)
		default:
			return false
		}
	default:
		return false
	}
}

func literalWord(word *syntax.Word) (string, bool) {
	var builder strings.Builder
	for _, part := range word.Parts {
		switch node := part.(type) {
		case *syntax.Lit:
			builder.WriteString(unescapeBare(node.Value))
		case *syntax.SglQuoted:
			if node.Dollar {
				return "", false
			}
			builder.WriteString(node.Value)
		case *syntax.DblQuoted:
			if node.Dollar {
				return "", false
			}
			for _, inner := range node.Parts {
				innerLit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				builder.WriteString(unescapeQuoted(innerLit.Value))
			}
		default:
			return "", false
		}
	}
	return builder.String(), true
}

// unescapeBare removes backslash escapes the way bash does outside quotes:
// the backslash is dropped and the next character kept, except a backslash
// before a newline which removes both (line continuation).
func unescapeBare(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var builder strings.Builder
	escaped := false
	for _, r := range value {
		if escaped {
			if r != '\n' {
				builder.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		builder.WriteRune(r)
	}
	if escaped {
		builder.WriteByte('\\')
	}
	return builder.String()
}

// unescapeQuoted handles backslashes inside double quotes, where only a few
// characters are escapable and the backslash otherwise stays literal.
func unescapeQuoted(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var builder strings.Builder
	escaped := false
	for _, r := range value {
		if escaped {
			switch r {
			case '$', '`', '"', '\\':
				builder.WriteRune(r)
			case '\n':
			default:
				builder.WriteByte('\\')
				builder.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		builder.WriteRune(r)
	}
	if escaped {
		builder.WriteByte('\\')
	}
	return builder.String()
}
