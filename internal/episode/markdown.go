package episode

import (
	"fmt"
	"strings"
)

// Markdown renders the human-readable mirror stored next to the
// canonical JSON record. The mirror is write-only: it is regenerated on
// every update and never parsed back.
func (e *Episode) Markdown() string {
	var b strings.Builder

	title := e.Intent.Summary
	if title == "" {
		title = e.Intent.RawPrompt
	}
	fmt.Fprintf(&b, "# Episode: %s\n\n", title)
	fmt.Fprintf(&b, "**ID**: %s\n", e.ShortID())
	fmt.Fprintf(&b, "**Date**: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	if e.Project != "" {
		fmt.Fprintf(&b, "**Project**: %s\n", e.Project)
	}
	fmt.Fprintf(&b, "**Type**: %s\n", e.Intent.TaskType)
	fmt.Fprintf(&b, "**Outcome**: %s\n\n", e.Outcome.Status)

	b.WriteString("## Intent\n\n")
	fmt.Fprintf(&b, "%s\n\n", e.Intent.RawPrompt)

	b.WriteString("## Context\n\n")
	writeList(&b, "### Files Read", e.Context.FilesRead)
	writeList(&b, "### Files Modified", e.Context.FilesModified)
	writeList(&b, "### Commands/Tools Used", e.Context.ToolsInvoked)

	if len(e.Context.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		b.WriteString("| Error | Resolution |\n")
		b.WriteString("|-------|------------|\n")
		for _, er := range e.Context.Errors {
			res := er.Resolution
			if res == "" {
				if er.Resolved {
					res = "resolved"
				} else {
					res = "unresolved"
				}
			}
			fmt.Fprintf(&b, "| %s | %s |\n", mdCell(er.Message), mdCell(res))
		}
		b.WriteString("\n")
	}

	if len(e.Intent.DomainTags) > 0 {
		b.WriteString("## Tags\n\n")
		fmt.Fprintf(&b, "%s\n\n", strings.Join(e.Intent.DomainTags, ", "))
	}

	if len(e.History) > 0 {
		b.WriteString("## Retrieval History\n\n")
		b.WriteString("| Date | Project | Query | Helpful |\n")
		b.WriteString("|------|---------|-------|--------|\n")
		for _, r := range e.History {
			helpful := "?"
			if r.Helpful != nil {
				if *r.Helpful {
					helpful = "yes"
				} else {
					helpful = "no"
				}
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				r.At.Format("2006-01-02"), mdCell(r.Project), mdCell(r.Query), helpful)
		}
	}

	return b.String()
}

func writeList(b *strings.Builder, header string, items []string) {
	b.WriteString(header + "\n")
	if len(items) == 0 {
		b.WriteString("- None\n")
	} else {
		for _, it := range items {
			fmt.Fprintf(b, "- %s\n", it)
		}
	}
	b.WriteString("\n")
}

// mdCell escapes pipes so free text cannot break table rows.
func mdCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "\\|")
}
