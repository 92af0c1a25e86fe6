package argmatch

import (
	"os"
	"path/filepath"
)

type Matcher string

const (
	OpaqueNonFile      Matcher = "opaque_value"
	ReadableFile       Matcher = "readable_file"
	WriteableFile      Matcher = "writeable_file"
	ReadableFiles      Matcher = "readable_files"
	ReadableFilesOrCwd Matcher = "readable_files_or_cwd"
	PositiveInteger    Matcher = "positive_integer"
	SedCommand         Matcher = "sed_command"
	UnverifiedVarargs  Matcher = "unverified_varargs"
)

var known = map[Matcher]struct{}{
	OpaqueNonFile:      {},
	ReadableFile:       {},
	WriteableFile:      {},
	ReadableFiles:      {},
	ReadableFilesOrCwd: {},
	PositiveInteger:    {},
	SedCommand:         {},
	UnverifiedVarargs:  {},
}

func (m Matcher) Known() bool {
	_, ok := known[m]
	return ok
}

// Variadic reports whether the matcher consumes a token tail instead of a
// single token. Only the last positional matcher of a spec may be variadic.
func (m Matcher) Variadic() bool {
	switch m {
	case ReadableFiles, ReadableFilesOrCwd, UnverifiedVarargs:
		return true
	default:
		return false
	}
}

// MatchToken reports whether a single token satisfies the matcher. Filesystem
// probes that fail for any reason count as a non-match, never an error.
func (m Matcher) MatchToken(token string) bool {
	switch m {
	case OpaqueNonFile:
		return true
	case ReadableFile:
		return readableFile(token)
	case WriteableFile:
		return writeableFile(token)
	case PositiveInteger:
		return positiveInteger(token)
	case SedCommand:
		return sedCommand(token)
	case ReadableFiles:
		return readableFile(token)
	case ReadableFilesOrCwd:
		return readableFile(token)
	case UnverifiedVarargs:
		return true
	default:
		return false
	}
}

// MatchTail reports whether a variadic matcher accepts the remaining tokens.
// Scalar matchers never accept a tail.
func (m Matcher) MatchTail(tokens []string) bool {
	switch m {
	case ReadableFiles:
		if len(tokens) == 0 {
			return false
		}
	case ReadableFilesOrCwd:
		if len(tokens) == 0 {
			return true
		}
	case UnverifiedVarargs:
		return true
	default:
		return false
	}
	for _, token := range tokens {
		if !m.MatchToken(token) {
			return false
		}
	}
	return true
}

func readableFile(token string) bool {
	if token == "" {
		return false
	}
	info, err := os.Stat(token)
	if err != nil || info.IsDir() {
		return false
	}
	file, err := os.Open(token) // #nosec G304 -- probing a caller-supplied path is the predicate.
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

func writeableFile(token string) bool {
	if token == "" {
		return false
	}
	info, err := os.Stat(token)
	if err == nil {
		if info.IsDir() {
			return false
		}
		file, err := os.OpenFile(token, os.O_WRONLY, 0) // #nosec G304 -- probe only, nothing is written.
		if err != nil {
			return false
		}
		_ = file.Close()
		return true
	}
	if !os.IsNotExist(err) {
		return false
	}
	parent, err := os.Stat(filepath.Dir(token))
	if err != nil || !parent.IsDir() {
		return false
	}
	return parent.Mode().Perm()&0o222 != 0
}

func positiveInteger(token string) bool {
	if token == "" || token[0] < '1' || token[0] > '9' {
		return false
	}
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
