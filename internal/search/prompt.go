package search

import (
	"fmt"
	"strings"

	"github.com/keepstack/keeprag/internal/store"
)

// sourceSeparator visually divides sources in the assembled context.
const sourceSeparator = "\n---\n\n"

// buildPrompt assembles the grounded-answer prompt: the question, every
// source annotated with its type, language, and score, and instructions
// pinning the output language and forbidding fabrication.
func buildPrompt(question string, sources []store.SearchResult, answerLanguage string) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		sectionType := src.SectionType
		if sectionType == "" {
			sectionType = "unknown"
		}
		language := src.Language
		if language == "" {
			language = "unknown"
		}
		parts[i] = fmt.Sprintf("[Source %d]\nType: %s\nLanguage: %s\nScore: %.3f\nContent: %s\n",
			i+1, sectionType, language, src.Score, src.Content)
	}

	var b strings.Builder
	b.WriteString("You are a knowledge-base assistant. Answer the user's question using only the retrieved sources below.\n\n")
	b.WriteString("**Question:**\n")
	b.WriteString(question)
	b.WriteString("\n\n**Retrieved sources:**\n")
	b.WriteString(strings.Join(parts, sourceSeparator))
	b.WriteString("\n\n**Instructions:**\n")
	fmt.Fprintf(&b, "1. Answer in %s. Translate sources written in other languages instead of omitting them; preserve their meaning.\n", answerLanguage)
	b.WriteString("2. Present the relevant source content directly in the answer so the reader does not need the originals.\n")
	b.WriteString("3. Group related material by topic; when several sources cover the same point, merge them and cite each.\n")
	b.WriteString("4. Cite source numbers when quoting or paraphrasing specific content (e.g. \"per source 1\").\n")
	b.WriteString("5. Stay strictly within the retrieved sources. Never fabricate.\n")
	b.WriteString("6. If the sources only partially answer the question, say which parts are covered and which are not.\n")
	b.WriteString("\n**Your answer:**")
	return b.String()
}
