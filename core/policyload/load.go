package policyload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/execgate/core/errors"
	"github.com/davidahmann/execgate/core/policy"
	"github.com/davidahmann/execgate/core/policydsl"
)

const policyExtension = ".policy"

// LoadDir compiles every *.policy file directly under dir into one policy.
// Files are processed in lexicographic path order so rule ordering is
// reproducible across hosts. Any unreadable or uncompilable file aborts the
// whole load; a policy that fails to compile is never partially trusted.
func LoadDir(dir string) (*policy.Policy, error) {
	paths, err := PolicyFiles(dir)
	if err != nil {
		return nil, err
	}
	return LoadFiles(paths)
}

// LoadFiles compiles the named policy files in the order given.
func LoadFiles(paths []string) (*policy.Policy, error) {
	sources := make([]policydsl.Source, 0, len(paths))
	for _, path := range paths {
		text, err := os.ReadFile(path) // #nosec G304 -- policy paths come from the operator's own configuration.
		if err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("read policy file: %w", err),
				coreerrors.CategoryInvalidInput, "policy_read", "check the policy file path", false)
		}
		sources = append(sources, policydsl.Source{Name: path, Text: string(text)})
	}
	return policydsl.Compile(sources)
}

// PolicyFiles lists the *.policy entries directly under dir, sorted.
func PolicyFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("read policy directory: %w", err),
			coreerrors.CategoryInvalidInput, "policy_dir", "check the policy directory path", false)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), policyExtension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
