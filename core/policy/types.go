package policy

import (
	"github.com/davidahmann/execgate/core/argmatch"
)

type OptKind string

const (
	OptFlag  OptKind = "flag"
	OptValue OptKind = "value"
)

type Opt struct {
	Name     string           `json:"name"`
	Kind     OptKind          `json:"kind"`
	Matcher  argmatch.Matcher `json:"matcher,omitempty"`
	Required bool             `json:"required,omitempty"`
}

// ProgramSpec is one accepted argument shape for a named program. Several
// specs may be registered for the same program; they are tried in
// registration order and the first structural match wins.
type ProgramSpec struct {
	Program            string             `json:"program"`
	AllowedInstallDirs []string           `json:"allowed_install_dirs,omitempty"`
	OptionBundling     bool               `json:"option_bundling,omitempty"`
	CombinedFormat     bool               `json:"combined_format,omitempty"`
	Options            []Opt              `json:"options,omitempty"`
	PositionalArgs     []argmatch.Matcher `json:"args,omitempty"`
	ForbiddenReason    string             `json:"forbidden,omitempty"`
	PromptReason       string             `json:"prompt,omitempty"`
	ShouldMatch        [][]string         `json:"should_match,omitempty"`
	ShouldNotMatch     [][]string         `json:"should_not_match,omitempty"`
}

func (spec ProgramSpec) option(name string) (Opt, bool) {
	for _, opt := range spec.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return Opt{}, false
}

type DecisionKind string

const (
	DecisionAllow     DecisionKind = "allow"
	DecisionPrompt    DecisionKind = "prompt"
	DecisionForbidden DecisionKind = "forbidden"
)

type Decision struct {
	Kind   DecisionKind `json:"decision"`
	Reason string       `json:"reason,omitempty"`
}

func AllowDecision() Decision {
	return Decision{Kind: DecisionAllow}
}

func PromptDecision(reason string) Decision {
	return Decision{Kind: DecisionPrompt, Reason: reason}
}

func ForbiddenDecision(reason string) Decision {
	return Decision{Kind: DecisionForbidden, Reason: reason}
}

func (d Decision) severity() int {
	switch d.Kind {
	case DecisionForbidden:
		return 3
	case DecisionPrompt:
		return 2
	case DecisionAllow:
		return 1
	default:
		return 0
	}
}

const (
	ResultMatch   = "match"
	ResultNoMatch = "no_match"
)

// Evaluation is the engine's answer for one invocation. NoMatch means the
// policy has no opinion; callers must not read it as a denial.
type Evaluation struct {
	Result   string    `json:"result"`
	Decision *Decision `json:"decision,omitempty"`
}

func MatchEvaluation(decision Decision) Evaluation {
	return Evaluation{Result: ResultMatch, Decision: &decision}
}

func NoMatchEvaluation() Evaluation {
	return Evaluation{Result: ResultNoMatch}
}

func (e Evaluation) Matched() bool {
	return e.Result == ResultMatch && e.Decision != nil
}
