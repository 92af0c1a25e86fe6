package policycheck

import "time"

const (
	SchemaID      = "execgate.policycheck.result"
	SchemaVersion = "1.0.0"
)

// CheckResult is the versioned JSON surface of one policy evaluation as the
// CLI reports it. The fields are deliberately flat so the document validates
// against a plain JSON schema and diffs cleanly in logs.
type CheckResult struct {
	SchemaID        string     `json:"schema_id"`
	SchemaVersion   string     `json:"schema_version"`
	CreatedAt       time.Time  `json:"created_at"`
	ProducerVersion string     `json:"producer_version"`
	CorrelationID   string     `json:"correlation_id,omitempty"`
	PolicyDigest    string     `json:"policy_digest,omitempty"`
	Argv            []string   `json:"argv"`
	Commands        [][]string `json:"commands,omitempty"`
	Result          string     `json:"result"`
	Decision        string     `json:"decision,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	ApprovalMode    string     `json:"approval_mode,omitempty"`
	Requirement     string     `json:"requirement,omitempty"`
}
