package main

import (
	"flag"
	"fmt"
	"io"
)

type versionOutput struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

func runVersion(arguments []string) int {
	flagSet := flag.NewFlagSet("version", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var jsonOutput bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	if err := flagSet.Parse(arguments); err != nil {
		return exitInvalidInput
	}

	if jsonOutput {
		return writeJSONOutput(versionOutput{OK: true, Version: version}, exitOK)
	}
	fmt.Println("execgate", version)
	return exitOK
}
