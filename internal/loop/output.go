package loop

import (
	"fmt"
	"io"
	"strings"
	"time"

	"ralphloop/internal/agent"
)

// writef writes formatted output, ignoring errors.
// Use for non-critical output where write failures are acceptable.
func writef(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// formatDuration formats a duration in a human-readable way (e.g. "2m34s").
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatIterationBanner renders the line emitted at each iteration boundary.
func formatIterationBanner(styles Styles, iteration, maxIterations int) string {
	return styles.Banner.Render(fmt.Sprintf("=== Iteration %d/%d ===", iteration, maxIterations))
}

// formatIterationLog renders the per-iteration outcome line:
// [i/N] session → status (duration).
func formatIterationLog(styles Styles, res IterationResult, maxIterations int) string {
	session := res.SessionID
	if session == "" {
		session = "(no session id)"
	}

	var status string
	switch {
	case res.CompletionDetected:
		status = styles.Success.Render(IconCompleted + " complete")
	case res.ExitCode != 0:
		status = styles.Error.Render(fmt.Sprintf("%s exit code %d", IconFailed, res.ExitCode))
	default:
		status = styles.Muted.Render("continuing")
	}

	return fmt.Sprintf("[%d/%d] %s → %s %s",
		res.Iteration, maxIterations, session, status,
		styles.Duration.Render("("+formatDuration(res.Duration)+")"))
}

// formatSummary renders the end-of-run summary block.
func formatSummary(styles Styles, summary *RunSummary) string {
	lines := make([]string, 0, 5)
	lines = append(lines, styles.Title.Render("Ralph loop finished:"))
	lines = append(lines, fmt.Sprintf("  %s %s",
		styles.StateStyle(summary.State).Render(StateIcon(summary.State)),
		summary.State))
	lines = append(lines, fmt.Sprintf("  Iterations: %d", summary.Iterations))
	if summary.FailedExits > 0 {
		lines = append(lines, styles.Error.Render(fmt.Sprintf("  %s %d nonzero exit(s)", IconFailed, summary.FailedExits)))
	}
	lines = append(lines, fmt.Sprintf("  Duration: %s", formatDuration(summary.Duration)))
	return strings.Join(lines, "\n")
}

// printVerboseOutput prints agent stdout/stderr excerpts, capped at the last
// few lines of each stream.
func printVerboseOutput(out io.Writer, result *agent.RunResult) {
	printStreamExcerpt(out, "stdout", result.Stdout)
	printStreamExcerpt(out, "stderr", result.Stderr)
}

func printStreamExcerpt(out io.Writer, name, content string) {
	if content == "" {
		return
	}
	lines := strings.Split(content, "\n")
	maxLines := 10
	if len(lines) > maxLines {
		writef(out, "  %s (showing last %d lines):\n", name, maxLines)
		lines = lines[len(lines)-maxLines:]
	} else {
		writef(out, "  %s:\n", name)
	}
	for _, line := range lines {
		if line != "" {
			writef(out, "    %s\n", line)
		}
	}
}
