package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/execgate/core/approval"
	"github.com/davidahmann/execgate/core/policy"
	"github.com/davidahmann/execgate/core/policyload"
	"github.com/davidahmann/execgate/core/projectconfig"
	"github.com/davidahmann/execgate/core/schema/v1/policycheck"
	"github.com/davidahmann/execgate/core/shellsplit"
)

type checkErrorOutput struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// policySelection is the resolved set of policy sources for one invocation:
// explicit --policy files and --policy-dir directories, falling back to the
// project config's policy_dirs when neither flag was given.
type policySelection struct {
	paths  []string
	config projectconfig.Config
}

func resolvePolicySelection(policyFiles, policyDirs stringListFlag, configPath string) (policySelection, error) {
	explicitConfig := strings.TrimSpace(configPath) != ""
	if !explicitConfig {
		configPath = projectconfig.DefaultPath
	}
	configuration, err := projectconfig.Load(configPath, !explicitConfig)
	if err != nil {
		return policySelection{}, err
	}

	dirs := []string(policyDirs)
	if len(policyFiles) == 0 && len(dirs) == 0 {
		dirs = configuration.PolicyDirs
	}

	paths := make([]string, 0, len(policyFiles))
	for _, dir := range dirs {
		dirPaths, err := policyload.PolicyFiles(dir)
		if err != nil {
			return policySelection{}, err
		}
		paths = append(paths, dirPaths...)
	}
	paths = append(paths, policyFiles...)
	return policySelection{paths: paths, config: configuration}, nil
}

func runCheck(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Evaluate one command against the compiled policy and report allow, prompt, forbidden, or no_match.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"policy": true, "policy-dir": true, "config": true, "mode": true})

	flagSet := flag.NewFlagSet("check", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var policyFiles stringListFlag
	var policyDirs stringListFlag
	var configPath string
	var modeFlag string
	var jsonOutput bool
	var helpFlag bool

	flagSet.Var(&policyFiles, "policy", "policy file to load (repeatable)")
	flagSet.Var(&policyDirs, "policy-dir", "directory of *.policy files to load (repeatable)")
	flagSet.StringVar(&configPath, "config", "", "project config path (default .execgate/config.yaml)")
	flagSet.StringVar(&modeFlag, "mode", "", "approval mode: untrusted, on-failure, on-request, or never")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeCheckError(jsonOutput, err.Error(), exitInvalidInput)
	}
	if helpFlag {
		printCheckUsage()
		return exitOK
	}
	commandTokens := flagSet.Args()
	if len(commandTokens) == 0 {
		return writeCheckError(jsonOutput, "missing command tokens after --", exitInvalidInput)
	}

	selection, err := resolvePolicySelection(policyFiles, policyDirs, configPath)
	if err != nil {
		return writeCheckError(jsonOutput, err.Error(), exitCodeForError(err, exitInvalidInput))
	}
	if len(selection.paths) == 0 {
		return writeCheckError(jsonOutput, "no policy files selected; pass --policy/--policy-dir or configure policy_dirs", exitInvalidInput)
	}

	compiled, err := policyload.LoadFiles(selection.paths)
	if err != nil {
		return writeCheckError(jsonOutput, err.Error(), exitCodeForError(err, exitInvalidInput))
	}

	if strings.TrimSpace(modeFlag) == "" && len(policyFiles) == 0 && len(policyDirs) == 0 {
		// Policies came from the project config, so its approval mode applies.
		modeFlag = selection.config.ApprovalMode
	}
	result, exitCode, err := checkCommand(compiled, commandTokens, modeFlag)
	if err != nil {
		return writeCheckError(jsonOutput, err.Error(), exitCodeForError(err, exitCode))
	}
	return writeCheckResult(jsonOutput, result, exitCode)
}

// checkCommand evaluates the command tokens and folds in the approval mode.
// With an empty mode the evaluation alone decides the exit code and no
// requirement is reported.
func checkCommand(compiled *policy.Policy, commandTokens []string, modeFlag string) (policycheck.CheckResult, int, error) {
	eval := policy.Evaluate(compiled, commandTokens)

	digest, err := compiled.Digest()
	if err != nil {
		return policycheck.CheckResult{}, exitInternalFailure, err
	}

	result := policycheck.CheckResult{
		SchemaID:        policycheck.SchemaID,
		SchemaVersion:   policycheck.SchemaVersion,
		CreatedAt:       time.Now().UTC(),
		ProducerVersion: version,
		CorrelationID:   currentCorrelationID(),
		PolicyDigest:    digest,
		Argv:            commandTokens,
		Commands:        shellsplit.Decompose(commandTokens),
		Result:          eval.Result,
	}
	exitCode := exitOK
	if eval.Matched() {
		result.Decision = string(eval.Decision.Kind)
		result.Reason = eval.Decision.Reason
		switch eval.Decision.Kind {
		case policy.DecisionForbidden:
			exitCode = exitPolicyForbidden
		case policy.DecisionPrompt:
			exitCode = exitApprovalRequired
		}
	}

	if strings.TrimSpace(modeFlag) == "" {
		return result, exitCode, nil
	}
	mode, err := approval.ParseMode(modeFlag)
	if err != nil {
		return policycheck.CheckResult{}, exitInvalidInput, err
	}
	result.ApprovalMode = string(mode)
	requirement, present := approval.MapToRequirement(eval, mode)
	if !present {
		return result, exitCode, nil
	}
	result.Requirement = string(requirement.Kind)
	if result.Reason == "" {
		result.Reason = approval.PresentationReason(requirement)
	}
	switch requirement.Kind {
	case approval.RequirementForbidden:
		exitCode = exitPolicyForbidden
	case approval.RequirementNeedsApproval:
		exitCode = exitApprovalRequired
	case approval.RequirementSkip:
		exitCode = exitOK
	}
	return result, exitCode, nil
}

func writeCheckResult(jsonOutput bool, result policycheck.CheckResult, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(result, exitCode)
	}

	view := map[string]any{"result": result.Result}
	if result.Decision != "" {
		view["decision"] = result.Decision
	}
	if result.Reason != "" {
		view["reason"] = result.Reason
	}
	if result.Requirement != "" {
		view["requirement"] = result.Requirement
	}
	encoded, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		fmt.Println(`{"result":"no_match"}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func writeCheckError(jsonOutput bool, message string, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(checkErrorOutput{OK: false, Error: message}, exitCode)
	}
	fmt.Printf("check error: %s\n", message)
	return exitCode
}

func printCheckUsage() {
	fmt.Println("Usage:")
	fmt.Println("  execgate check [--policy <file>]... [--policy-dir <dir>]... [--config <path>] [--mode <approval-mode>] [--json] -- <command tokens...>")
}
