// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"strings"
	"unicode"
)

const shellSafePunctuation = "-_./=:@%+,"

// CommandLine builds the string handed to `sh -c`. A single element is used verbatim since the
// caller supplied a complete shell command. Otherwise every argument is quoted so that word
// boundaries survive whatever the arguments contain.
func CommandLine(command []string) string {
	if len(command) == 1 {
		return command[0]
	}

	quoted := make([]string, len(command))
	for i, arg := range command {
		quoted[i] = ShellQuote(arg)
	}

	return strings.Join(quoted, " ")
}

// ShellQuote returns s unchanged when it only contains letters, digits and a small set of
// punctuation, otherwise it wraps s in single quotes.
func ShellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}

	return !strings.ContainsRune(shellSafePunctuation, r)
}
