package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketVault/internal/recorder"
)

// maxListedFailures caps the per-symbol lines in a summary; Telegram rejects
// messages over 4096 characters.
const maxListedFailures = 15

// FormatSyncSummary formats one finished run into a Telegram message.
func FormatSyncSummary(run *recorder.RunRecord) string {
	var b strings.Builder

	icon := "✅"
	switch {
	case run.Err != "" || run.Pending > 0:
		icon = "⏹"
	case run.Failed > 0 && run.Succeeded > 0:
		icon = "⚠️"
	case run.Failed > 0:
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s <b>MarketVault sync</b> | %s\n\n", icon, run.StartedAt.Format("2006-01-02 15:04"))

	if run.Source != "" {
		fmt.Fprintf(&b, "Source: %s", html.EscapeString(run.Source))
		if run.Force {
			b.WriteString(" (forced rebuild)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Succeeded: %d (skip %d, incremental %d, full %d)\n",
		run.Succeeded, run.Skipped, run.Incremental, run.FullRefresh)
	fmt.Fprintf(&b, "Failed: %d\n", run.Failed)
	if run.Pending > 0 {
		fmt.Fprintf(&b, "Pending: %d\n", run.Pending)
	}
	fmt.Fprintf(&b, "Duration: %s\n", run.Duration().Round(time.Second))
	if run.Err != "" {
		fmt.Fprintf(&b, "Stopped: %s\n", html.EscapeString(run.Err))
	}

	if len(run.Failures) > 0 {
		b.WriteString("\n<b>Failures:</b>\n")
		for i, f := range run.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  … and %d more\n", len(run.Failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "  %s [%s] %s\n", html.EscapeString(f.Symbol), f.Kind, html.EscapeString(f.Message))
		}
	}
	return b.String()
}

// FormatRecentRuns formats run history for the /status command.
func FormatRecentRuns(runs []recorder.RunRecord) string {
	if len(runs) == 0 {
		return "📭 No sync runs recorded yet."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Recent sync runs</b>\n\n")
	for _, run := range runs {
		mark := "✅"
		if !run.OK() {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "%s %s %s: ok %d, failed %d",
			mark, run.StartedAt.Format("01-02 15:04"), html.EscapeString(run.Trigger), run.Succeeded, run.Failed)
		if run.Pending > 0 {
			fmt.Fprintf(&b, ", pending %d", run.Pending)
		}
		fmt.Fprintf(&b, " (%s)\n", run.Duration().Round(time.Second))
	}
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "🤖 <b>MarketVault commands</b>\n\n" +
		"/status - recent sync runs\n" +
		"/sync - start a sync now\n" +
		"/help - this message"
}
