package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	coreerrors "github.com/davidahmann/execgate/core/errors"
	"github.com/davidahmann/execgate/core/fsx"
	execjcs "github.com/davidahmann/execgate/core/jcs"
	"github.com/davidahmann/execgate/core/policy"
	"github.com/davidahmann/execgate/core/policyload"
)

type compileOutput struct {
	OK                  bool     `json:"ok"`
	Files               []string `json:"files,omitempty"`
	Programs            []string `json:"programs,omitempty"`
	SpecCount           int      `json:"spec_count,omitempty"`
	ForbiddenRegexes    int      `json:"forbidden_regexes,omitempty"`
	ForbiddenSubstrings int      `json:"forbidden_substrings,omitempty"`
	PolicyDigest        string   `json:"policy_digest,omitempty"`
	SnapshotPath        string   `json:"snapshot_path,omitempty"`
	Error               string   `json:"error,omitempty"`
}

func runCompile(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Compile the selected policy files without evaluating anything and print a summary with a stable digest; --out exports the canonical snapshot the digest is computed over.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"policy": true, "policy-dir": true, "config": true, "out": true})

	flagSet := flag.NewFlagSet("compile", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var policyFiles stringListFlag
	var policyDirs stringListFlag
	var configPath string
	var outPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.Var(&policyFiles, "policy", "policy file to load (repeatable)")
	flagSet.Var(&policyDirs, "policy-dir", "directory of *.policy files to load (repeatable)")
	flagSet.StringVar(&configPath, "config", "", "project config path (default .execgate/config.yaml)")
	flagSet.StringVar(&outPath, "out", "", "write the canonical policy snapshot JSON to this path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeCompileOutput(jsonOutput, compileOutput{Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		printCompileUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeCompileOutput(jsonOutput, compileOutput{Error: "unexpected positional arguments"}, exitInvalidInput)
	}

	selection, err := resolvePolicySelection(policyFiles, policyDirs, configPath)
	if err != nil {
		return writeCompileOutput(jsonOutput, compileOutput{Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	if len(selection.paths) == 0 {
		return writeCompileOutput(jsonOutput, compileOutput{Error: "no policy files selected; pass --policy/--policy-dir or configure policy_dirs"}, exitInvalidInput)
	}

	compiled, err := policyload.LoadFiles(selection.paths)
	if err != nil {
		return writeCompileOutput(jsonOutput, compileOutput{Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	digest, err := compiled.Digest()
	if err != nil {
		return writeCompileOutput(jsonOutput, compileOutput{Error: err.Error()}, exitCodeForError(err, exitInternalFailure))
	}

	output := compileOutput{
		OK:                  true,
		Files:               selection.paths,
		Programs:            compiled.Programs(),
		SpecCount:           compiled.SpecCount(),
		ForbiddenRegexes:    len(compiled.ForbiddenProgramRegexes()),
		ForbiddenSubstrings: len(compiled.ForbiddenSubstrings()),
		PolicyDigest:        digest,
	}
	if strings.TrimSpace(outPath) != "" {
		if err := writeSnapshot(compiled, strings.TrimSpace(outPath)); err != nil {
			return writeCompileOutput(jsonOutput, compileOutput{Error: err.Error()}, exitCodeForError(err, exitInternalFailure))
		}
		output.SnapshotPath = strings.TrimSpace(outPath)
	}
	return writeCompileOutput(jsonOutput, output, exitOK)
}

// writeSnapshot exports the compiled policy in the exact canonical form the
// digest is computed over, so two hosts can diff their loaded rules.
func writeSnapshot(compiled *policy.Policy, path string) error {
	raw, err := json.Marshal(compiled.Snapshot())
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("marshal policy snapshot: %w", err),
			coreerrors.CategoryInternalFailure, "snapshot_encode", "", false)
	}
	canonical, err := execjcs.Canonicalize(raw)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("canonicalize policy snapshot: %w", err),
			coreerrors.CategoryInternalFailure, "snapshot_encode", "", false)
	}
	canonical = append(canonical, '\n')
	if err := fsx.WriteFileAtomic(path, canonical, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write policy snapshot: %w", err),
			coreerrors.CategoryIOFailure, "snapshot_write", "check the --out path is writable", true)
	}
	return nil
}

func writeCompileOutput(jsonOutput bool, output compileOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("compile error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("compiled %d files: %d programs, %d specs, %d forbidden regexes, %d forbidden substrings\n",
		len(output.Files), len(output.Programs), output.SpecCount, output.ForbiddenRegexes, output.ForbiddenSubstrings)
	fmt.Printf("policy digest: %s\n", output.PolicyDigest)
	if output.SnapshotPath != "" {
		fmt.Printf("snapshot written: %s\n", output.SnapshotPath)
	}
	return exitCode
}

func printCompileUsage() {
	fmt.Println("Usage:")
	fmt.Println("  execgate compile [--policy <file>]... [--policy-dir <dir>]... [--config <path>] [--out <path>] [--json]")
}
