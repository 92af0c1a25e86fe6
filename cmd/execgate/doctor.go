package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/davidahmann/execgate/core/doctor"
)

type doctorOutput struct {
	OK              bool           `json:"ok"`
	SchemaID        string         `json:"schema_id,omitempty"`
	SchemaVersion   string         `json:"schema_version,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	ProducerVersion string         `json:"producer_version,omitempty"`
	Status          string         `json:"status,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Checks          []doctor.Check `json:"checks,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func runDoctor(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Diagnose the local policy setup: config parses, policy directories exist, policies compile, and the digest is stable.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"config": true, "policy-dir": true})

	flagSet := flag.NewFlagSet("doctor", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var policyDirs stringListFlag
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&configPath, "config", "", "project config path (default .execgate/config.yaml)")
	flagSet.Var(&policyDirs, "policy-dir", "policy directory to check instead of the configured ones (repeatable)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeDoctorOutput(jsonOutput, doctorOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		printDoctorUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeDoctorOutput(jsonOutput, doctorOutput{OK: false, Error: "unexpected positional arguments"}, exitInvalidInput)
	}

	result := doctor.Run(doctor.Options{
		ConfigPath:      configPath,
		PolicyDirs:      policyDirs,
		ProducerVersion: version,
	})

	exitCode := exitOK
	ok := true
	if result.Status == "fail" {
		exitCode = exitInvalidInput
		ok = false
	}
	return writeDoctorOutput(jsonOutput, doctorOutput{
		OK:              ok,
		SchemaID:        result.SchemaID,
		SchemaVersion:   result.SchemaVersion,
		CreatedAt:       result.CreatedAt,
		ProducerVersion: result.ProducerVersion,
		Status:          result.Status,
		Summary:         result.Summary,
		Checks:          result.Checks,
	}, exitCode)
}

func writeDoctorOutput(jsonOutput bool, output doctorOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("doctor error: %s\n", output.Error)
		return exitCode
	}
	fmt.Println(output.Summary)
	for _, check := range output.Checks {
		fmt.Printf("- %s: %s (%s)\n", check.Name, check.Status, check.Message)
		if check.FixCommand != "" {
			fmt.Printf("  fix: %s\n", check.FixCommand)
		}
	}
	return exitCode
}

func printDoctorUsage() {
	fmt.Println("Usage:")
	fmt.Println("  execgate doctor [--config <path>] [--policy-dir <dir>]... [--json]")
}
