package vectorstore

import (
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// Projection derives the canonical embedding text for an episode. The
// same function feeds the vector index at write time and the lexical
// fallback at query time, so both backends score against identical text.
//
// Canonical order: raw prompt, summary, task type, domain tags, modified
// file basenames, tools, error messages. Output is lowercased with
// whitespace collapsed to single spaces.
func Projection(e *episode.Episode) string {
	var parts []string

	if e.Intent.RawPrompt != "" {
		parts = append(parts, e.Intent.RawPrompt)
	}
	if e.Intent.Summary != "" {
		parts = append(parts, e.Intent.Summary)
	}
	parts = append(parts, "task type: "+string(e.Intent.TaskType))

	if len(e.Intent.DomainTags) > 0 {
		parts = append(parts, "tags: "+strings.Join(e.Intent.DomainTags, ", "))
	}
	if len(e.Context.FilesModified) > 0 {
		names := make([]string, len(e.Context.FilesModified))
		for i, p := range e.Context.FilesModified {
			names[i] = filepath.Base(p)
		}
		parts = append(parts, "files: "+strings.Join(names, ", "))
	}
	if len(e.Context.ToolsInvoked) > 0 {
		parts = append(parts, "tools: "+strings.Join(e.Context.ToolsInvoked, ", "))
	}
	if len(e.Context.Errors) > 0 {
		msgs := make([]string, len(e.Context.Errors))
		for i, er := range e.Context.Errors {
			msgs[i] = er.Message
		}
		parts = append(parts, "errors: "+strings.Join(msgs, ", "))
	}

	return normalizeText(strings.Join(parts, " | "))
}

// normalizeText lowercases and collapses all whitespace runs to single
// spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokenize splits normalized text into the token set used by the
// lexical fallback.
func Tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;|()[]{}\"'`")
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// Jaccard computes token-overlap similarity between two token sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
