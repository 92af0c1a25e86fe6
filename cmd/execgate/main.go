package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID(arguments)
	setCurrentCorrelationID(correlationID)
	command := normalizeCommand(arguments)
	exitCode := runDispatch(arguments)
	writeTelemetryEvent(command, correlationID, exitCode, time.Since(startedAt))
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	if arguments[1] == "--explain" {
		return writeExplain("Execgate decides, before an agent runs a shell command, whether to execute it silently, ask a human first, or refuse outright, based on declarative .policy files.")
	}

	switch arguments[1] {
	case "check":
		return runCheck(arguments[2:])
	case "compile":
		return runCompile(arguments[2:])
	case "selftest":
		return runSelftest(arguments[2:])
	case "doctor":
		return runDoctor(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		return runVersion(arguments[2:])
	default:
		printUsage()
		return exitInvalidInput
	}
}

func normalizeCommand(arguments []string) string {
	if len(arguments) < 2 {
		return "usage"
	}
	command := strings.TrimSpace(arguments[1])
	switch command {
	case "":
		return "unknown"
	case "--version", "-v":
		return "version"
	case "--explain":
		return "explain"
	default:
		return command
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  execgate check [--policy <file>]... [--policy-dir <dir>]... [--config <path>] [--mode <approval-mode>] [--json] -- <command tokens...>")
	fmt.Println("  execgate compile [--policy <file>]... [--policy-dir <dir>]... [--config <path>] [--json]")
	fmt.Println("  execgate selftest [--policy-dir <dir>]... [--config <path>] [--json]")
	fmt.Println("  execgate doctor [--config <path>] [--policy-dir <dir>]... [--json]")
	fmt.Println("  execgate version [--json]")
}
