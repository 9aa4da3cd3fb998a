package composer

import (
	"fmt"
	"strings"

	"github.com/docsentry/docsentry/internal/index"
)

const systemPreamble = `You are a helpful assistant answering questions about internal company documents.

Answer using ONLY the context excerpts below. If the context does not contain the answer, say so plainly instead of guessing. Never mention documents or facts that are not in the context. Keep answers concise.`

// FallbackAnswer is the wording the model is instructed to use when it has
// nothing to answer from. It is also returned verbatim when retrieval is
// empty and the model itself is unavailable.
func FallbackAnswer(question string) string {
	return fmt.Sprintf("I couldn't find relevant information for %q. Feel free to rephrase or try a different topic.", question)
}

// buildHistoryOnlyPrompt is the system message for an empty retrieval: the
// model may answer from the conversation so far or must state that no
// relevant document was found, in the exact fallback wording.
func buildHistoryOnlyPrompt(question string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions about internal company documents.\n\n")
	b.WriteString("No document excerpts are available for this question. Answer ONLY if the conversation so far contains the answer. ")
	b.WriteString("Otherwise reply with exactly this sentence and nothing else:\n\n")
	b.WriteString(FallbackAnswer(question))
	return b.String()
}

// buildSystemPrompt renders the retrieved chunks into the system message.
func buildSystemPrompt(results []index.Result) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, r.Chunk.Content)
	}
	return b.String()
}
