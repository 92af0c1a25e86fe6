package argmatch

// sedCommand accepts only plain substitution scripts: s<delim>pattern<delim>
// replacement<delim>flags. Addresses, command lists, the e flag, and w-file
// flags are all rejected so a matched token can never execute or write.
func sedCommand(token string) bool {
	if len(token) < 4 || token[0] != 's' {
		return false
	}
	delim := rune(token[1])
	if !sedDelimiter(delim) {
		return false
	}

	parts := make([]string, 0, 3)
	current := make([]rune, 0, len(token))
	escaped := false
	for _, r := range token[2:] {
		if escaped {
			current = append(current, r)
			escaped = false
			continue
		}
		if r == '\\' {
			current = append(current, r)
			escaped = true
			continue
		}
		if r == delim {
			parts = append(parts, string(current))
			current = current[:0]
			continue
		}
		current = append(current, r)
	}
	if escaped {
		return false
	}
	parts = append(parts, string(current))
	if len(parts) != 3 {
		return false
	}
	return sedFlags(parts[2])
}

func sedDelimiter(r rune) bool {
	if r < '!' || r > '~' {
		return false
	}
	if r >= '0' && r <= '9' {
		return false
	}
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
		return false
	}
	return r != '\\'
}

func sedFlags(flags string) bool {
	numeric := false
	for _, r := range flags {
		switch {
		case r == 'g' || r == 'i' || r == 'p':
			numeric = false
		case r >= '1' && r <= '9':
			numeric = true
		case r == '0':
			// An occurrence count never starts with zero.
			if !numeric {
				return false
			}
		default:
			return false
		}
	}
	return true
}
