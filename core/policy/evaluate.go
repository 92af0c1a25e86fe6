package policy

import (
	"path/filepath"
	"strings"

	"github.com/davidahmann/execgate/core/shellsplit"
)

// Check evaluates one command. Forbidden substrings are screened first, then
// forbidden program patterns, then registered specs in registration order.
// Matching is total: every input either matches or does not, never errors.
func (p *Policy) Check(command []string) Evaluation {
	if len(command) == 0 {
		return NoMatchEvaluation()
	}
	if eval, forbidden := p.forbiddenScreen(command); forbidden {
		return eval
	}
	program := filepath.Base(command[0])
	for _, index := range p.byProgram[program] {
		spec := p.specs[index]
		if spec.ForbiddenReason != "" {
			return MatchEvaluation(ForbiddenDecision(spec.ForbiddenReason))
		}
		if !spec.matchesInvocation(command) {
			continue
		}
		if spec.PromptReason != "" {
			return MatchEvaluation(PromptDecision(spec.PromptReason))
		}
		return MatchEvaluation(AllowDecision())
	}
	return NoMatchEvaluation()
}

// CheckMultiple combines per-command evaluations by severity: forbidden over
// prompt over allow. A compound invocation is only as safe as its most
// dangerous clause. NoMatch results are ignored unless every command is one.
func (p *Policy) CheckMultiple(commands [][]string) Evaluation {
	matched := false
	var worst Decision
	for _, command := range commands {
		eval := p.Check(command)
		if !eval.Matched() {
			continue
		}
		if !matched || eval.Decision.severity() > worst.severity() {
			matched = true
			worst = *eval.Decision
		}
	}
	if !matched {
		return NoMatchEvaluation()
	}
	return MatchEvaluation(worst)
}

// Evaluate screens the raw argv, decomposes any inline shell script, and
// combines the inner-command decisions. The raw argv is screened before
// decomposition because splitting a pipeline discards the operator tokens a
// forbidden substring may need to see.
func Evaluate(p *Policy, argv []string) Evaluation {
	if eval, forbidden := p.forbiddenScreen(argv); forbidden {
		return eval
	}
	return p.CheckMultiple(shellsplit.Decompose(argv))
}

// forbiddenScreen applies the substring and program-pattern deny rules. A
// multi-word substring also matches when its words occur in order within the
// command's words, so inserted arguments cannot defeat it.
func (p *Policy) forbiddenScreen(command []string) (Evaluation, bool) {
	if len(command) == 0 {
		return Evaluation{}, false
	}
	joined := strings.Join(command, " ")
	var words []string
	for _, substring := range p.forbiddenSubstrings {
		if strings.Contains(joined, substring) {
			return MatchEvaluation(ForbiddenDecision("forbidden substring: " + substring)), true
		}
		pattern := strings.Fields(substring)
		if len(pattern) < 2 {
			continue
		}
		if words == nil {
			words = strings.Fields(joined)
		}
		if wordsContainInOrder(words, pattern) {
			return MatchEvaluation(ForbiddenDecision("forbidden substring: " + substring)), true
		}
	}
	program := filepath.Base(command[0])
	for _, entry := range p.forbiddenRegexes {
		if entry.regex.MatchString(program) {
			return MatchEvaluation(ForbiddenDecision(entry.rule.Reason)), true
		}
	}
	return Evaluation{}, false
}

// SpecMatches evaluates one command against a single spec, the way embedded
// policy self-tests need. The command's program token must name the spec's
// program; a forbidden spec matches every invocation of it.
func SpecMatches(spec ProgramSpec, command []string) bool {
	if len(command) == 0 {
		return false
	}
	if filepath.Base(command[0]) != spec.Program {
		return false
	}
	if spec.ForbiddenReason != "" {
		return true
	}
	return spec.matchesInvocation(command)
}

func wordsContainInOrder(words, pattern []string) bool {
	next := 0
	for _, word := range words {
		if word == pattern[next] {
			next++
			if next == len(pattern) {
				return true
			}
		}
	}
	return false
}

func (spec ProgramSpec) matchesInvocation(command []string) bool {
	if len(spec.AllowedInstallDirs) > 0 && filepath.IsAbs(command[0]) {
		dir := filepath.Dir(command[0])
		allowed := false
		for _, installDir := range spec.AllowedInstallDirs {
			if dir == installDir {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	tokens := command[1:]
	seen := make(map[string]struct{})
	index := 0
	for index < len(tokens) {
		token := tokens[index]
		if !strings.HasPrefix(token, "-") {
			break
		}
		consumed, ok := spec.matchOption(tokens, index, seen)
		if !ok {
			return false
		}
		index += consumed
	}

	if !spec.matchPositional(tokens[index:]) {
		return false
	}
	for _, opt := range spec.Options {
		if !opt.Required {
			continue
		}
		if _, ok := seen[opt.Name]; !ok {
			return false
		}
	}
	return true
}

// matchOption resolves one leading option token and returns how many tokens
// it consumed. Unknown option tokens fail the whole match.
func (spec ProgramSpec) matchOption(tokens []string, index int, seen map[string]struct{}) (int, bool) {
	token := tokens[index]

	if spec.CombinedFormat {
		if name, value, found := strings.Cut(token, "="); found && strings.HasPrefix(name, "--") {
			opt, ok := spec.option(name)
			if !ok || opt.Kind != OptValue || !opt.Matcher.MatchToken(value) {
				return 0, false
			}
			seen[opt.Name] = struct{}{}
			return 1, true
		}
	}

	if opt, ok := spec.option(token); ok {
		switch opt.Kind {
		case OptFlag:
			seen[opt.Name] = struct{}{}
			return 1, true
		case OptValue:
			if index+1 >= len(tokens) || !opt.Matcher.MatchToken(tokens[index+1]) {
				return 0, false
			}
			seen[opt.Name] = struct{}{}
			return 2, true
		}
		return 0, false
	}

	if spec.OptionBundling && len(token) > 2 && token[1] != '-' {
		bundled := make([]string, 0, len(token)-1)
		for _, short := range token[1:] {
			opt, ok := spec.option("-" + string(short))
			if !ok || opt.Kind != OptFlag {
				return 0, false
			}
			bundled = append(bundled, opt.Name)
		}
		for _, name := range bundled {
			seen[name] = struct{}{}
		}
		return 1, true
	}

	return 0, false
}

func (spec ProgramSpec) matchPositional(rest []string) bool {
	matchers := spec.PositionalArgs
	variadic := len(matchers) > 0 && matchers[len(matchers)-1].Variadic()
	scalarCount := len(matchers)
	if variadic {
		scalarCount--
	}
	if len(rest) < scalarCount {
		return false
	}
	if !variadic && len(rest) != scalarCount {
		return false
	}
	for index := 0; index < scalarCount; index++ {
		if !matchers[index].MatchToken(rest[index]) {
			return false
		}
	}
	if variadic {
		return matchers[len(matchers)-1].MatchTail(rest[scalarCount:])
	}
	return true
}
