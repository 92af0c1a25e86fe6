package doctor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/execgate/core/policyload"
	"github.com/davidahmann/execgate/core/projectconfig"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	ConfigPath      string
	PolicyDirs      []string
	ProducerVersion string
}

type Result struct {
	SchemaID        string  `json:"schema_id"`
	SchemaVersion   string  `json:"schema_version"`
	CreatedAt       string  `json:"created_at"`
	ProducerVersion string  `json:"producer_version"`
	Status          string  `json:"status"`
	Summary         string  `json:"summary"`
	Checks          []Check `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
}

// Run diagnoses the local policy setup: config parses, policy directories
// exist, every policy compiles, and the compiled digest is stable across two
// builds. Checks never mutate anything.
func Run(opts Options) Result {
	configPath := strings.TrimSpace(opts.ConfigPath)
	if configPath == "" {
		configPath = projectconfig.DefaultPath
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	var checks []Check

	configuration, err := projectconfig.Load(configPath, true)
	switch {
	case err != nil:
		checks = append(checks, Check{
			Name:       "config",
			Status:     statusFail,
			Message:    err.Error(),
			FixCommand: fmt.Sprintf("edit %s", configPath),
		})
	case configExists(configPath):
		checks = append(checks, Check{Name: "config", Status: statusPass, Message: fmt.Sprintf("loaded %s", configPath)})
	default:
		checks = append(checks, Check{Name: "config", Status: statusWarn, Message: fmt.Sprintf("%s not found, using defaults", configPath)})
	}

	policyDirs := opts.PolicyDirs
	if len(policyDirs) == 0 {
		policyDirs = configuration.PolicyDirs
	}
	if len(policyDirs) == 0 {
		checks = append(checks, Check{
			Name:       "policy_dirs",
			Status:     statusWarn,
			Message:    "no policy directories configured; every evaluation will be no_match",
			FixCommand: fmt.Sprintf("add policy_dirs to %s", configPath),
		})
	}
	for _, dir := range policyDirs {
		checks = append(checks, checkPolicyDir(dir)...)
	}

	status := statusPass
	for _, check := range checks {
		if check.Status == statusFail {
			status = statusFail
			break
		}
		if check.Status == statusWarn {
			status = statusWarn
		}
	}

	return Result{
		SchemaID:        "execgate.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		Summary:         summarize(status, checks),
		Checks:          checks,
	}
}

func checkPolicyDir(dir string) []Check {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return []Check{{
			Name:       "policy_dir " + dir,
			Status:     statusFail,
			Message:    "directory does not exist",
			FixCommand: fmt.Sprintf("mkdir -p %s", dir),
		}}
	}

	paths, err := policyload.PolicyFiles(dir)
	if err != nil {
		return []Check{{Name: "policy_dir " + dir, Status: statusFail, Message: err.Error()}}
	}
	if len(paths) == 0 {
		return []Check{{
			Name:    "policy_dir " + dir,
			Status:  statusWarn,
			Message: "no *.policy files found",
		}}
	}

	compiled, err := policyload.LoadDir(dir)
	if err != nil {
		return []Check{{
			Name:       "policy_compile " + dir,
			Status:     statusFail,
			Message:    err.Error(),
			FixCommand: "fix the named policy file and re-run doctor",
		}}
	}
	checks := []Check{{
		Name:    "policy_compile " + dir,
		Status:  statusPass,
		Message: fmt.Sprintf("%d files, %d program specs", len(paths), compiled.SpecCount()),
	}}

	firstDigest, firstErr := compiled.Digest()
	recompiled, err := policyload.LoadDir(dir)
	if firstErr != nil || err != nil {
		checks = append(checks, Check{Name: "policy_digest " + dir, Status: statusFail, Message: "digest computation failed"})
		return checks
	}
	secondDigest, err := recompiled.Digest()
	if err != nil || firstDigest != secondDigest {
		checks = append(checks, Check{
			Name:    "policy_digest " + dir,
			Status:  statusFail,
			Message: "digest not stable across two compiles",
		})
		return checks
	}
	checks = append(checks, Check{Name: "policy_digest " + dir, Status: statusPass, Message: firstDigest})
	return checks
}

func configExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func summarize(status string, checks []Check) string {
	failing := 0
	warning := 0
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failing++
		case statusWarn:
			warning++
		}
	}
	return fmt.Sprintf("doctor status=%s checks=%d fail=%d warn=%d", status, len(checks), failing, warning)
}
