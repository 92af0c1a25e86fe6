package policydsl

import (
	"fmt"

	"github.com/davidahmann/execgate/core/argmatch"
	coreerrors "github.com/davidahmann/execgate/core/errors"
	"github.com/davidahmann/execgate/core/policy"
)

const (
	compileErrorCode = "policy_compile"
	compileErrorHint = "fix the named policy file and recompile"
)

var matcherConstants = map[string]argmatch.Matcher{
	"ARG_OPAQUE_VALUE":       argmatch.OpaqueNonFile,
	"ARG_RFILE":              argmatch.ReadableFile,
	"ARG_WFILE":              argmatch.WriteableFile,
	"ARG_RFILES":             argmatch.ReadableFiles,
	"ARG_RFILES_OR_CWD":      argmatch.ReadableFilesOrCwd,
	"ARG_POS_INT":            argmatch.PositiveInteger,
	"ARG_SED_COMMAND":        argmatch.SedCommand,
	"ARG_UNVERIFIED_VARARGS": argmatch.UnverifiedVarargs,
}

type Source struct {
	Name string
	Text string
}

type regexRule struct {
	pattern string
	reason  string
	origin  string
}

// Parser accumulates statements from one or more policy sources. Statements
// are executed as they parse, so a spec's embedded self-tests run the moment
// the spec is constructed and a bad statement aborts the whole load.
type Parser struct {
	specs      []policy.ProgramSpec
	regexRules []regexRule
	substrings []string
}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(sourceName, text string) error {
	statements, err := parseSource(sourceName, text)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		if err := p.execute(sourceName, statement); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the accumulated statements into a compiled policy. The
// forbidden-program patterns compile inside policy.New, which reports the
// recorded origin when one is invalid. A policy that fails to build must
// never be partially trusted, so any error here means the caller keeps
// whatever policy it had before.
func (p *Parser) Build() (*policy.Policy, error) {
	rules := make([]policy.ForbiddenProgramRegexRule, 0, len(p.regexRules))
	for _, rule := range p.regexRules {
		rules = append(rules, policy.ForbiddenProgramRegexRule{
			Pattern: rule.pattern,
			Reason:  rule.reason,
			Origin:  rule.origin,
		})
	}
	compiled, err := policy.New(p.specs, rules, p.substrings)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, compileErrorCode, compileErrorHint, false)
	}
	return compiled, nil
}

func Compile(sources []Source) (*policy.Policy, error) {
	parser := NewParser()
	for _, source := range sources {
		if err := parser.Parse(source.Name, source.Text); err != nil {
			return nil, err
		}
	}
	return parser.Build()
}

func (p *Parser) execute(source string, statement callExpr) error {
	switch statement.name {
	case "define_program":
		return p.defineProgram(source, statement)
	case "forbid_substrings":
		return p.forbidSubstrings(source, statement)
	case "forbid_program_regex":
		return p.forbidProgramRegex(source, statement)
	default:
		return locationError(source, statement.line, "unknown statement %s", statement.name)
	}
}

func (p *Parser) defineProgram(source string, statement callExpr) error {
	var spec policy.ProgramSpec
	seen := make(map[string]struct{}, len(statement.args))
	for index, arg := range statement.args {
		name := arg.name
		if name == "" {
			if index != 0 {
				return locationError(source, arg.line, "define_program takes only the program as a positional argument")
			}
			name = "program"
		}
		if _, duplicate := seen[name]; duplicate {
			return locationError(source, arg.line, "duplicate argument %s", name)
		}
		seen[name] = struct{}{}

		var err error
		switch name {
		case "program":
			spec.Program, err = stringValue(source, arg.value)
		case "system_path":
			spec.AllowedInstallDirs, err = stringListValue(source, arg.value)
		case "option_bundling":
			spec.OptionBundling, err = boolValue(source, arg.value)
		case "combined_format":
			spec.CombinedFormat, err = boolValue(source, arg.value)
		case "options":
			spec.Options, err = optionsValue(source, arg.value)
		case "args":
			spec.PositionalArgs, err = matcherListValue(source, arg.value)
		case "forbidden":
			spec.ForbiddenReason, err = stringValue(source, arg.value)
		case "prompt":
			spec.PromptReason, err = stringValue(source, arg.value)
		case "should_match":
			spec.ShouldMatch, err = tokenListsValue(source, arg.value)
		case "should_not_match":
			spec.ShouldNotMatch, err = tokenListsValue(source, arg.value)
		default:
			err = locationError(source, arg.line, "unknown argument %s for define_program", name)
		}
		if err != nil {
			return err
		}
	}

	if err := policy.ValidateSpec(spec); err != nil {
		return locationError(source, statement.line, "%v", err)
	}
	for _, tokens := range spec.ShouldMatch {
		if !policy.SpecMatches(spec, tokens) {
			return locationError(source, statement.line, "self-test failed: %s should match %q", spec.Program, tokens)
		}
	}
	for _, tokens := range spec.ShouldNotMatch {
		if policy.SpecMatches(spec, tokens) {
			return locationError(source, statement.line, "self-test failed: %s should not match %q", spec.Program, tokens)
		}
	}
	p.specs = append(p.specs, spec)
	return nil
}

func (p *Parser) forbidSubstrings(source string, statement callExpr) error {
	if len(statement.args) != 1 || statement.args[0].name != "" {
		return locationError(source, statement.line, "forbid_substrings takes one list of strings")
	}
	substrings, err := stringListValue(source, statement.args[0].value)
	if err != nil {
		return err
	}
	for index, substring := range substrings {
		if substring == "" {
			return locationError(source, statement.args[0].line, "forbid_substrings entry %d is empty", index)
		}
	}
	p.substrings = append(p.substrings, substrings...)
	return nil
}

func (p *Parser) forbidProgramRegex(source string, statement callExpr) error {
	var pattern, reason string
	var patternSet, reasonSet bool
	for index, arg := range statement.args {
		name := arg.name
		if name == "" {
			switch index {
			case 0:
				name = "regex"
			case 1:
				name = "reason"
			default:
				return locationError(source, arg.line, "forbid_program_regex takes a regex and a reason")
			}
		}
		parsed, err := stringValue(source, arg.value)
		if err != nil {
			return err
		}
		switch name {
		case "regex":
			if patternSet {
				return locationError(source, arg.line, "duplicate argument regex")
			}
			pattern, patternSet = parsed, true
		case "reason":
			if reasonSet {
				return locationError(source, arg.line, "duplicate argument reason")
			}
			reason, reasonSet = parsed, true
		default:
			return locationError(source, arg.line, "unknown argument %s for forbid_program_regex", name)
		}
	}
	if !patternSet || !reasonSet {
		return locationError(source, statement.line, "forbid_program_regex takes a regex and a reason")
	}
	p.regexRules = append(p.regexRules, regexRule{
		pattern: pattern,
		reason:  reason,
		origin:  fmt.Sprintf("%s:%d", source, statement.line),
	})
	return nil
}

func optionsValue(source string, v value) ([]policy.Opt, error) {
	if v.kind != valueList {
		return nil, locationError(source, v.line, "options must be a list of opt() and flag() entries")
	}
	options := make([]policy.Opt, 0, len(v.list))
	for _, element := range v.list {
		if element.kind != valueCall {
			return nil, locationError(source, element.line, "options entries must be opt() or flag() calls")
		}
		opt, err := optionCall(source, *element.call)
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	return options, nil
}

func optionCall(source string, call callExpr) (policy.Opt, error) {
	switch call.name {
	case "flag":
		if len(call.args) != 1 || call.args[0].name != "" {
			return policy.Opt{}, locationError(source, call.line, "flag takes exactly one name")
		}
		name, err := stringValue(source, call.args[0].value)
		if err != nil {
			return policy.Opt{}, err
		}
		return policy.Opt{Name: name, Kind: policy.OptFlag}, nil
	case "opt":
		return valueOptionCall(source, call)
	default:
		return policy.Opt{}, locationError(source, call.line, "unknown option constructor %s", call.name)
	}
}

func valueOptionCall(source string, call callExpr) (policy.Opt, error) {
	opt := policy.Opt{Kind: policy.OptValue}
	var nameSet, typeSet bool
	for index, arg := range call.args {
		name := arg.name
		if name == "" {
			switch index {
			case 0:
				name = "name"
			case 1:
				name = "type"
			case 2:
				name = "required"
			default:
				return policy.Opt{}, locationError(source, arg.line, "opt takes a name, a type, and required")
			}
		}
		switch name {
		case "name":
			parsed, err := stringValue(source, arg.value)
			if err != nil {
				return policy.Opt{}, err
			}
			opt.Name, nameSet = parsed, true
		case "type":
			matcher, err := matcherValue(source, arg.value)
			if err != nil {
				return policy.Opt{}, err
			}
			opt.Matcher, typeSet = matcher, true
		case "required":
			required, err := boolValue(source, arg.value)
			if err != nil {
				return policy.Opt{}, err
			}
			opt.Required = required
		default:
			return policy.Opt{}, locationError(source, arg.line, "unknown argument %s for opt", name)
		}
	}
	if !nameSet || !typeSet {
		return policy.Opt{}, locationError(source, call.line, "opt requires a name and a type")
	}
	return opt, nil
}

func matcherValue(source string, v value) (argmatch.Matcher, error) {
	if v.kind != valueIdent {
		return "", locationError(source, v.line, "expected a matcher constant")
	}
	matcher, ok := matcherConstants[v.str]
	if !ok {
		return "", locationError(source, v.line, "unknown matcher constant %s", v.str)
	}
	return matcher, nil
}

func matcherListValue(source string, v value) ([]argmatch.Matcher, error) {
	if v.kind != valueList {
		return nil, locationError(source, v.line, "args must be a list of matcher constants")
	}
	matchers := make([]argmatch.Matcher, 0, len(v.list))
	for _, element := range v.list {
		matcher, err := matcherValue(source, element)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

func stringValue(source string, v value) (string, error) {
	if v.kind != valueString {
		return "", locationError(source, v.line, "expected a string")
	}
	return v.str, nil
}

func boolValue(source string, v value) (bool, error) {
	if v.kind != valueBool {
		return false, locationError(source, v.line, "expected True or False")
	}
	return v.boolean, nil
}

func stringListValue(source string, v value) ([]string, error) {
	if v.kind != valueList {
		return nil, locationError(source, v.line, "expected a list of strings")
	}
	strings := make([]string, 0, len(v.list))
	for _, element := range v.list {
		parsed, err := stringValue(source, element)
		if err != nil {
			return nil, err
		}
		strings = append(strings, parsed)
	}
	return strings, nil
}

func tokenListsValue(source string, v value) ([][]string, error) {
	if v.kind != valueList {
		return nil, locationError(source, v.line, "expected a list of token lists")
	}
	lists := make([][]string, 0, len(v.list))
	for _, element := range v.list {
		tokens, err := stringListValue(source, element)
		if err != nil {
			return nil, err
		}
		lists = append(lists, tokens)
	}
	return lists, nil
}

// locationError builds the classified compile error every statement failure
// reports: invalid_input category, source and line in the message.
func locationError(source string, line int, format string, args ...any) error {
	message := fmt.Sprintf("%s:%d: %s", source, line, fmt.Sprintf(format, args...))
	return coreerrors.New(message, coreerrors.CategoryInvalidInput, compileErrorCode, compileErrorHint, false)
}
