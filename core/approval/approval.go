package approval

import (
	"fmt"
	"strings"

	"github.com/davidahmann/execgate/core/policy"
)

// Mode is the user's configured appetite for approval prompts. Only never
// changes how an evaluation maps to a requirement: with prompts disabled, an
// unresolvable "ask" becomes a refusal, not a silent allow.
type Mode string

const (
	ModeUntrusted Mode = "untrusted"
	ModeOnFailure Mode = "on-failure"
	ModeOnRequest Mode = "on-request"
	ModeNever     Mode = "never"
)

func ParseMode(text string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(text))) {
	case ModeUntrusted:
		return ModeUntrusted, nil
	case ModeOnFailure:
		return ModeOnFailure, nil
	case ModeOnRequest:
		return ModeOnRequest, nil
	case ModeNever:
		return ModeNever, nil
	default:
		return "", fmt.Errorf("unknown approval mode %q (expected untrusted, on-failure, on-request, or never)", text)
	}
}

type RequirementKind string

const (
	RequirementSkip          RequirementKind = "skip"
	RequirementNeedsApproval RequirementKind = "needs_approval"
	RequirementForbidden     RequirementKind = "forbidden"
)

// Requirement is what the process-spawning collaborator consumes.
type Requirement struct {
	Kind   RequirementKind `json:"requirement"`
	Reason string          `json:"reason,omitempty"`
}

// Default presentation reasons, used only when the policy author supplied none.
const (
	DefaultForbiddenReason = "execpolicy forbids this command"
	DefaultPromptReason    = "execpolicy requires approval for this command"
)

// MapToRequirement folds the approval mode into an evaluation. A NoMatch
// evaluation communicates no requirement at all; the caller falls back to its
// own risk heuristic.
func MapToRequirement(eval policy.Evaluation, mode Mode) (Requirement, bool) {
	if !eval.Matched() {
		return Requirement{}, false
	}
	decision := *eval.Decision
	switch decision.Kind {
	case policy.DecisionForbidden:
		return Requirement{Kind: RequirementForbidden, Reason: decision.Reason}, true
	case policy.DecisionPrompt:
		if mode == ModeNever {
			return Requirement{Kind: RequirementForbidden, Reason: decision.Reason}, true
		}
		return Requirement{Kind: RequirementNeedsApproval, Reason: decision.Reason}, true
	default:
		return Requirement{Kind: RequirementSkip}, true
	}
}

// PresentationReason returns the reason a front end should show, substituting
// the fixed defaults when the policy supplied none.
func PresentationReason(requirement Requirement) string {
	if requirement.Reason != "" {
		return requirement.Reason
	}
	switch requirement.Kind {
	case RequirementForbidden:
		return DefaultForbiddenReason
	case RequirementNeedsApproval:
		return DefaultPromptReason
	default:
		return ""
	}
}
