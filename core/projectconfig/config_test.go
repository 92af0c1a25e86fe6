package projectconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/execgate/core/approval"
	coreerrors "github.com/davidahmann/execgate/core/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
policy_dirs:
  - ./policies
  - "  /etc/execgate/policies  "
approval_mode: never
telemetry_path: ./telemetry.jsonl
`)
	configuration, err := Load(path, false)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(configuration.PolicyDirs) != 2 {
		t.Fatalf("unexpected policy dirs: %v", configuration.PolicyDirs)
	}
	if configuration.PolicyDirs[1] != "/etc/execgate/policies" {
		t.Fatalf("policy dir not trimmed: %q", configuration.PolicyDirs[1])
	}
	if configuration.Mode() != approval.ModeNever {
		t.Fatalf("unexpected mode: %s", configuration.Mode())
	}
	if configuration.TelemetryPath != "./telemetry.jsonl" {
		t.Fatalf("unexpected telemetry path: %q", configuration.TelemetryPath)
	}
}

func TestLoadMissingConfigAllowed(t *testing.T) {
	configuration, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if configuration.ApprovalMode != "on-request" {
		t.Fatalf("expected default approval mode, got %q", configuration.ApprovalMode)
	}
	if len(configuration.PolicyDirs) != 0 {
		t.Fatalf("expected no policy dirs, got %v", configuration.PolicyDirs)
	}
}

func TestLoadMissingConfigRejectedWhenRequired(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Fatal("expected error for required missing config")
	}
}

func TestLoadEmptyConfigUsesDefaults(t *testing.T) {
	configuration, err := Load(writeConfig(t, "\n"), false)
	if err != nil {
		t.Fatalf("load empty config: %v", err)
	}
	if configuration.Mode() != approval.ModeOnRequest {
		t.Fatalf("expected default mode, got %s", configuration.Mode())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "policy_dir: ./policies\n"), false)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRejectsUnknownApprovalMode(t *testing.T) {
	_, err := Load(writeConfig(t, "approval_mode: sometimes\n"), false)
	if err == nil {
		t.Fatal("expected error for unknown approval mode")
	}
	if !strings.Contains(err.Error(), "approval mode") {
		t.Fatalf("error should name the approval mode: %v", err)
	}
}

func TestLoadErrorsAreClassified(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantCode string
	}{
		{name: "bad_yaml", content: "policy_dirs: [unterminated\n", wantCode: "config_parse"},
		{name: "bad_approval_mode", content: "approval_mode: sometimes\n", wantCode: "config_approval_mode"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, testCase.content), false)
			if err == nil {
				t.Fatal("expected load error")
			}
			if got := coreerrors.CategoryOf(err); got != coreerrors.CategoryInvalidInput {
				t.Fatalf("category=%q want=%q", got, coreerrors.CategoryInvalidInput)
			}
			if got := coreerrors.CodeOf(err); got != testCase.wantCode {
				t.Fatalf("code=%q want=%q", got, testCase.wantCode)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load("  ", true); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if got := expandHome("~/policies"); got != filepath.Join(home, "policies") {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got := expandHome("./policies"); got != "./policies" {
		t.Fatalf("relative path must be untouched: %q", got)
	}
	if got := expandHome("~"); got != home {
		t.Fatalf("bare tilde must expand: %q", got)
	}
}
