package agent

import (
	"regexp"
	"strings"
)

// CompletionMarker is the literal token an agent prints to signal that the
// loop may stop.
const CompletionMarker = "<promise>COMPLETE</promise>"

// DetectCompletion reports whether the combined output contains the
// completion marker. Exact substring match; no trimming, no regexp.
func DetectCompletion(output string) bool {
	return strings.Contains(output, CompletionMarker)
}

// extractSessionID applies an ordered list of patterns against combined
// output and returns the first match's first captured group, or empty string
// when nothing matches. Pure over literal text so each variant's pattern set
// is testable against captured fixture output without a subprocess.
func extractSessionID(patterns []*regexp.Regexp, output string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(output); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// claudeSessionPatterns match, in preference order, the session identifier
// claude prints: the stream-json/json result field first, then the camelCase
// variant some releases emit, then the plain-text footer.
var claudeSessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"session_id"\s*:\s*"([0-9a-fA-F-]{36})"`),
	regexp.MustCompile(`"sessionId"\s*:\s*"([0-9a-fA-F-]{36})"`),
	regexp.MustCompile(`Session ID:\s*([0-9a-fA-F-]{36})`),
}

// opencodeSessionPatterns match the opencode session identifier: the JSON
// field first, then any bare ses_ token in plain-text output.
var opencodeSessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"sessionID"\s*:\s*"(ses_[A-Za-z0-9]+)"`),
	regexp.MustCompile(`\b(ses_[A-Za-z0-9]{8,})\b`),
}
