package policy

import (
	"encoding/json"
	"fmt"

	execjcs "github.com/davidahmann/execgate/core/jcs"
)

// Snapshot is the stable exported view of a compiled policy, with specs in
// registration order. It feeds the digest and the compile summary output.
type Snapshot struct {
	Programs                []ProgramSpec               `json:"programs"`
	ForbiddenProgramRegexes []ForbiddenProgramRegexRule `json:"forbidden_program_regexes"`
	ForbiddenSubstrings     []string                    `json:"forbidden_substrings"`
}

func (p *Policy) Snapshot() Snapshot {
	programs := make([]ProgramSpec, 0, len(p.specs))
	return Snapshot{
		Programs:                append(programs, p.specs...),
		ForbiddenProgramRegexes: p.ForbiddenProgramRegexes(),
		ForbiddenSubstrings:     p.ForbiddenSubstrings(),
	}
}

// Digest returns the sha256 hex digest of the RFC 8785 canonical JSON form of
// the compiled policy. Equal digests mean two processes loaded identical rules.
func (p *Policy) Digest() (string, error) {
	raw, err := json.Marshal(p.Snapshot())
	if err != nil {
		return "", fmt.Errorf("marshal policy snapshot: %w", err)
	}
	digest, err := execjcs.Digest(raw)
	if err != nil {
		return "", fmt.Errorf("digest policy: %w", err)
	}
	return digest, nil
}
