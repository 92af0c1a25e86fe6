package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/davidahmann/execgate/core/policytest"
)

type selftestOutput struct {
	OK       bool                 `json:"ok"`
	Dirs     []string             `json:"dirs,omitempty"`
	Files    int                  `json:"files,omitempty"`
	Checks   int                  `json:"checks,omitempty"`
	Failures []policytest.Failure `json:"failures,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func runSelftest(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Recompile the policy directories, which re-runs every embedded should_match/should_not_match self-test, then run the declared *.checks.json expectation suites.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"policy-dir": true, "config": true})

	flagSet := flag.NewFlagSet("selftest", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var policyDirs stringListFlag
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.Var(&policyDirs, "policy-dir", "directory of *.policy files to test (repeatable)")
	flagSet.StringVar(&configPath, "config", "", "project config path (default .execgate/config.yaml)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSelftestOutput(jsonOutput, selftestOutput{Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		printSelftestUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSelftestOutput(jsonOutput, selftestOutput{Error: "unexpected positional arguments"}, exitInvalidInput)
	}

	dirs := []string(policyDirs)
	if len(dirs) == 0 {
		selection, err := resolvePolicySelection(nil, nil, configPath)
		if err != nil {
			return writeSelftestOutput(jsonOutput, selftestOutput{Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
		}
		dirs = selection.config.PolicyDirs
	}
	if len(dirs) == 0 {
		return writeSelftestOutput(jsonOutput, selftestOutput{Error: "no policy directories selected; pass --policy-dir or configure policy_dirs"}, exitInvalidInput)
	}

	output := selftestOutput{OK: true, Dirs: dirs}
	for _, dir := range dirs {
		report, err := policytest.RunDir(dir)
		if err != nil {
			return writeSelftestOutput(jsonOutput, selftestOutput{Dirs: dirs, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
		}
		output.Files += report.Files
		output.Checks += report.Checks
		output.Failures = append(output.Failures, report.Failures...)
	}
	exitCode := exitOK
	if len(output.Failures) > 0 {
		output.OK = false
		exitCode = exitInvalidInput
	}
	return writeSelftestOutput(jsonOutput, output, exitCode)
}

func writeSelftestOutput(jsonOutput bool, output selftestOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("selftest error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("selftest dirs=%d suites=%d checks=%d failures=%d\n",
		len(output.Dirs), output.Files, output.Checks, len(output.Failures))
	for _, failure := range output.Failures {
		name := failure.Name
		if name == "" {
			name = strings.Join(failure.Argv, " ")
		}
		fmt.Printf("- %s: %s expected %s, got %s\n", failure.File, name, failure.Expect, failure.Got)
	}
	return exitCode
}

func printSelftestUsage() {
	fmt.Println("Usage:")
	fmt.Println("  execgate selftest [--policy-dir <dir>]... [--config <path>] [--json]")
}
