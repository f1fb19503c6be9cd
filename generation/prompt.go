package generation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/docrag/core"
)

// DefaultHistoryTurns is how many trailing chat turns are placed in the prompt.
const DefaultHistoryTurns = 5

const systemInstruction = "You are a helpful AI assistant that answers questions based on the provided documents. " +
	"Always cite your sources by referencing the document names. " +
	"If the answer cannot be found in the provided context, say so clearly."

// Request is the input to Generate and Stream.
type Request struct {
	Query   string
	Context []core.SearchResult
	History []core.ChatTurn
}

// BuildPrompt renders req as a single prompt: instruction, numbered context
// chunks, the last historyTurns chat turns, then the query.
func BuildPrompt(req Request, historyTurns int) string {
	var b strings.Builder
	b.WriteString(systemInstruction)

	if len(req.Context) > 0 {
		b.WriteString("\n\nContext from documents:")
		for i, chunk := range req.Context {
			fmt.Fprintf(&b, "\n[%d] From document '%s':\n%s", i+1, chunk.DocumentName(), chunk.Content)
		}
	}

	history := req.History
	if historyTurns >= 0 && len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("\n\nPrevious conversation:")
		for _, turn := range history {
			fmt.Fprintf(&b, "\n%s: %s", roleLabel(turn.Role), turn.Content)
		}
	}

	fmt.Fprintf(&b, "\n\nUser: %s", req.Query)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

func roleLabel(role core.Role) string {
	s := string(role)
	if s == "" {
		s = string(core.RoleUser)
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func summaryPrompt(text string, maxWords int) string {
	return fmt.Sprintf("Please provide a concise summary of the following document content in no more than %d words:\n\n%s\n\nSummary:", maxWords, text)
}

func topicsPrompt(text string, count int) string {
	return fmt.Sprintf("Extract %d key topics or themes from the following text. \nReturn only the topics as a comma-separated list:\n\n%s\n\nTopics:", count, text)
}
