package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type ForbiddenProgramRegexRule struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
	// Origin names where the rule was declared (source:line). It is for
	// error reporting only and stays out of the digest snapshot.
	Origin string `json:"-"`
}

type forbiddenProgramRegex struct {
	rule  ForbiddenProgramRegexRule
	regex *regexp.Regexp
}

// Policy is the compiled, immutable rule set. It is safe to share across
// concurrent evaluations; a reload builds a new Policy and swaps the
// reference, never mutates one in place.
type Policy struct {
	specs               []ProgramSpec
	byProgram           map[string][]int
	forbiddenRegexes    []forbiddenProgramRegex
	forbiddenSubstrings []string
}

func New(specs []ProgramSpec, regexRules []ForbiddenProgramRegexRule, substrings []string) (*Policy, error) {
	compiled := &Policy{
		specs:               append([]ProgramSpec(nil), specs...),
		byProgram:           make(map[string][]int, len(specs)),
		forbiddenRegexes:    make([]forbiddenProgramRegex, 0, len(regexRules)),
		forbiddenSubstrings: append([]string(nil), substrings...),
	}
	for index, spec := range compiled.specs {
		if err := ValidateSpec(spec); err != nil {
			return nil, err
		}
		compiled.byProgram[spec.Program] = append(compiled.byProgram[spec.Program], index)
	}
	for _, rule := range regexRules {
		regex, err := regexp.Compile(rule.Pattern)
		if err != nil {
			if rule.Origin != "" {
				return nil, fmt.Errorf("%s: compile forbidden program regex %q: %w", rule.Origin, rule.Pattern, err)
			}
			return nil, fmt.Errorf("compile forbidden program regex %q: %w", rule.Pattern, err)
		}
		compiled.forbiddenRegexes = append(compiled.forbiddenRegexes, forbiddenProgramRegex{rule: rule, regex: regex})
	}
	return compiled, nil
}

func ValidateSpec(spec ProgramSpec) error {
	if strings.TrimSpace(spec.Program) == "" {
		return fmt.Errorf("program name is required")
	}
	if spec.ForbiddenReason != "" && spec.PromptReason != "" {
		return fmt.Errorf("program %s declares both forbidden and prompt", spec.Program)
	}
	seen := make(map[string]struct{}, len(spec.Options))
	for _, opt := range spec.Options {
		if opt.Name == "" {
			return fmt.Errorf("program %s declares an unnamed option", spec.Program)
		}
		if _, ok := seen[opt.Name]; ok {
			return fmt.Errorf("duplicate flag: %s", opt.Name)
		}
		seen[opt.Name] = struct{}{}
		switch opt.Kind {
		case OptFlag:
		case OptValue:
			if !opt.Matcher.Known() {
				return fmt.Errorf("option %s of program %s has unknown matcher %q", opt.Name, spec.Program, opt.Matcher)
			}
			if opt.Matcher.Variadic() {
				return fmt.Errorf("option %s of program %s uses a variadic matcher", opt.Name, spec.Program)
			}
		default:
			return fmt.Errorf("option %s of program %s has unknown kind %q", opt.Name, spec.Program, opt.Kind)
		}
	}
	for index, matcher := range spec.PositionalArgs {
		if !matcher.Known() {
			return fmt.Errorf("program %s arg %d has unknown matcher %q", spec.Program, index, matcher)
		}
		if matcher.Variadic() && index != len(spec.PositionalArgs)-1 {
			return fmt.Errorf("program %s: variadic matcher %s must be the last arg", spec.Program, matcher)
		}
	}
	return nil
}

// Programs returns the distinct program names with registered specs, sorted.
func (p *Policy) Programs() []string {
	names := make([]string, 0, len(p.byProgram))
	for name := range p.byProgram {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Policy) SpecsFor(program string) []ProgramSpec {
	indices := p.byProgram[program]
	specs := make([]ProgramSpec, 0, len(indices))
	for _, index := range indices {
		specs = append(specs, p.specs[index])
	}
	return specs
}

func (p *Policy) SpecCount() int {
	return len(p.specs)
}

func (p *Policy) ForbiddenSubstrings() []string {
	substrings := make([]string, 0, len(p.forbiddenSubstrings))
	return append(substrings, p.forbiddenSubstrings...)
}

func (p *Policy) ForbiddenProgramRegexes() []ForbiddenProgramRegexRule {
	rules := make([]ForbiddenProgramRegexRule, 0, len(p.forbiddenRegexes))
	for _, entry := range p.forbiddenRegexes {
		rules = append(rules, entry.rule)
	}
	return rules
}
