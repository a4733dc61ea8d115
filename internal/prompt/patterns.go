// Package prompt recognizes shell prompts and password prompts in terminal
// output.
package prompt

import (
	"fmt"
	"regexp"
)

// DefaultSentinel is the token injected into the spawned shell's prompt.
// It is chosen to be human-readable while unlikely to appear in ordinary
// command output.
const DefaultSentinel = "termtap"

// SentinelPattern builds the primary boundary pattern for an injected
// sentinel token: the token, an optional path, and shell prompt punctuation
// at the end of a line.
func SentinelPattern(sentinel string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?m)` + regexp.QuoteMeta(sentinel) + `(?: [^\r\n]*)?[#$%]\s*$`,
	)
}

// ShellPromptEnv returns the environment needed to make the given shell
// print the sentinel prompt.
func ShellPromptEnv(shell, sentinel string) []string {
	switch shellBase(shell) {
	case "zsh":
		return []string{
			fmt.Sprintf("PROMPT=%s %%~%%# ", sentinel),
			fmt.Sprintf("PS1=%s %%~%%# ", sentinel),
			"RPROMPT=",
			"PROMPT_COMMAND=",
			"precmd_functions=",
		}
	case "fish":
		return []string{
			fmt.Sprintf("PS1=%s$ ", sentinel),
			"fish_greeting=",
		}
	default:
		return []string{
			fmt.Sprintf("PS1=%s \\w\\$ ", sentinel),
			"PROMPT_COMMAND=",
		}
	}
}

// ShellInitArgs returns the init flags that stop the shell from overriding
// the injected prompt with rc-file customizations.
func ShellInitArgs(shell string) []string {
	switch shellBase(shell) {
	case "zsh":
		return []string{"-d", "-f", "--interactive"}
	case "bash":
		return []string{"--noprofile", "--norc"}
	default:
		return nil
	}
}

func shellBase(shell string) string {
	for i := len(shell) - 1; i >= 0; i-- {
		if shell[i] == '/' {
			return shell[i+1:]
		}
	}
	return shell
}

// fallbackPatterns match common third-party prompt styles. They exist only so
// a nested REPL or sub-shell that replaces the prompt does not leave the
// session stuck busy forever; the sentinel pattern is the authoritative
// signal.
func fallbackPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// user@host:/path$ or user@host:~#
		regexp.MustCompile(`(?m)[\w.-]+@[\w.-]+:[\w/~.-]*[#$]\s*$`),
		// PowerShell: PS C:\Users\x>
		regexp.MustCompile(`(?m)PS [^>\r\n]*>\s*$`),
		// Python REPL
		regexp.MustCompile(`(?m)^>>>\s*$`),
		// bare sh/root prompts alone on the line
		regexp.MustCompile(`(?m)^[#$%]\s*$`),
	}
}

// passwordPatterns match common password-prompt phrasings. Best effort: a
// miss degrades to normal echo, a spurious match hides keystrokes until the
// next boundary.
func passwordPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[sudo\] password for \w+`),
		regexp.MustCompile(`(?i)\bpassword\b:`),
		regexp.MustCompile(`(?i)password for [\w\\@.-]+`),
		regexp.MustCompile(`(?i)enter (?:the )?password`),
		regexp.MustCompile(`(?i)[\w.-]+@[\w.-]+'s password`),
		regexp.MustCompile(`(?i)\w+'s password`),
		regexp.MustCompile(`(?i)please enter [\w\s]*passphrase`),
		regexp.MustCompile(`(?i)enter passphrase for key`),
		regexp.MustCompile(`(?i)[\w\s]+password required`),
		regexp.MustCompile(`(?i)password required for \w+`),
		regexp.MustCompile(`(?i)authentication password`),
		regexp.MustCompile(`(?i)password to connect to [\w.-]+`),
	}
}
