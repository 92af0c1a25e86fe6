package policytest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davidahmann/execgate/core/approval"
	"github.com/davidahmann/execgate/core/policy"
	"github.com/davidahmann/execgate/core/policyload"
)

const suiteExtension = ".checks.json"

// Check is one declared expectation: a raw argv and the evaluation it must
// produce against the compiled policy. When ApprovalMode is set the mapped
// requirement is checked as well.
type Check struct {
	Name              string   `json:"name,omitempty"`
	Argv              []string `json:"argv"`
	Expect            string   `json:"expect"`
	ApprovalMode      string   `json:"approval_mode,omitempty"`
	ExpectRequirement string   `json:"expect_requirement,omitempty"`
}

type Suite struct {
	Checks []Check `json:"checks"`
}

type Failure struct {
	File   string   `json:"file"`
	Name   string   `json:"name,omitempty"`
	Argv   []string `json:"argv"`
	Expect string   `json:"expect"`
	Got    string   `json:"got"`
}

type Report struct {
	Files    int       `json:"files"`
	Checks   int       `json:"checks"`
	Failures []Failure `json:"failures,omitempty"`
}

func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// RunDir compiles the policy directory and evaluates every *.checks.json
// suite found next to the policy files. Compiling the directory also
// re-executes the embedded should_match/should_not_match self-tests, so a
// passing run vouches for both layers of expectations.
func RunDir(dir string) (Report, error) {
	compiled, err := policyload.LoadDir(dir)
	if err != nil {
		return Report{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("read policy directory: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suiteExtension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	report := Report{Files: len(paths)}
	for _, path := range paths {
		suite, err := loadSuite(path)
		if err != nil {
			return Report{}, err
		}
		fileReport, err := Run(compiled, path, suite)
		if err != nil {
			return Report{}, err
		}
		report.Checks += fileReport.Checks
		report.Failures = append(report.Failures, fileReport.Failures...)
	}
	return report, nil
}

// Run evaluates one suite against an already compiled policy.
func Run(compiled *policy.Policy, file string, suite Suite) (Report, error) {
	report := Report{Files: 1}
	for index, check := range suite.Checks {
		if len(check.Argv) == 0 {
			return Report{}, fmt.Errorf("%s: check %d has no argv", file, index)
		}
		if !validExpectation(check.Expect) {
			return Report{}, fmt.Errorf("%s: check %d has unknown expectation %q", file, index, check.Expect)
		}
		report.Checks++

		eval := policy.Evaluate(compiled, check.Argv)
		got := evaluationLabel(eval)
		if got != check.Expect {
			report.Failures = append(report.Failures, Failure{
				File:   file,
				Name:   check.Name,
				Argv:   check.Argv,
				Expect: check.Expect,
				Got:    got,
			})
			continue
		}
		if check.ApprovalMode == "" {
			continue
		}
		mode, err := approval.ParseMode(check.ApprovalMode)
		if err != nil {
			return Report{}, fmt.Errorf("%s: check %d: %w", file, index, err)
		}
		requirement, present := approval.MapToRequirement(eval, mode)
		gotRequirement := "none"
		if present {
			gotRequirement = string(requirement.Kind)
		}
		if check.ExpectRequirement != "" && gotRequirement != check.ExpectRequirement {
			report.Failures = append(report.Failures, Failure{
				File:   file,
				Name:   check.Name,
				Argv:   check.Argv,
				Expect: "requirement " + check.ExpectRequirement,
				Got:    "requirement " + gotRequirement,
			})
		}
	}
	return report, nil
}

func loadSuite(path string) (Suite, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- suite paths are discovered under the operator's policy dir.
	if err != nil {
		return Suite{}, fmt.Errorf("read check suite: %w", err)
	}
	var suite Suite
	if err := json.Unmarshal(content, &suite); err != nil {
		return Suite{}, fmt.Errorf("parse check suite %s: %w", path, err)
	}
	return suite, nil
}

func validExpectation(expect string) bool {
	switch expect {
	case "allow", "prompt", "forbidden", "no_match":
		return true
	default:
		return false
	}
}

func evaluationLabel(eval policy.Evaluation) string {
	if !eval.Matched() {
		return "no_match"
	}
	return string(eval.Decision.Kind)
}
