package analysis

import (
	"fmt"
	"strings"
	"time"
)

// renderNotes formats the structured payload as the markdown notes file the
// pipeline writes next to the transcript.
func renderNotes(fileName string, recorded time.Time, notes Notes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Notes: %s\n\n", fileName)
	if !recorded.IsZero() {
		fmt.Fprintf(&b, "Recorded: %s\n\n", recorded.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "## Summary\n\n%s\n", strings.TrimSpace(notes.Summary))

	writeSection := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	writeSection("Key Points", notes.KeyPoints)
	writeSection("Action Items", notes.ActionItems)
	writeSection("Open Questions", notes.OpenQuestions)
	return b.String()
}
