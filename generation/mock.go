package generation

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
)

var answerOpenings = []string{
	"Based on the provided documents, I can answer your question about '%s'. ",
	"According to the information in the documents, ",
	"From the context provided, I found that ",
	"The documents indicate that ",
}

var answerClosings = []string{
	"I've analyzed the relevant sections and can provide you with a comprehensive answer.",
	"The documents contain several key points that address your question.",
	"Based on my analysis of the document content, here's what I found.",
	"Let me summarize the most relevant information from the documents.",
}

// MockDisclaimer ends every degraded answer.
const MockDisclaimer = " (This is a mock response for development/testing purposes.)"

// MockTopics are returned by ExtractTopics in degraded mode.
var MockTopics = []string{"Document Analysis", "Key Information", "Important Points", "Data Summary", "Content Overview"}

// MockAnswer builds the placeholder answer served in degraded mode. The
// wording is chosen from the query hash so equal requests get equal answers.
func MockAnswer(req Request) string {
	h := fnv.New32a()
	h.Write([]byte(req.Query))
	pick := int(h.Sum32() % uint32(len(answerOpenings)))

	var b strings.Builder
	opening := answerOpenings[pick]
	if strings.Contains(opening, "%s") {
		opening = fmt.Sprintf(opening, req.Query)
	}
	b.WriteString(opening)

	if len(req.Context) > 0 {
		var names []string
		for _, chunk := range req.Context[:min(3, len(req.Context))] {
			name := chunk.DocumentName()
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		fmt.Fprintf(&b, "This information comes from the following documents: %s. ", strings.Join(names, ", "))
	}

	b.WriteString(answerClosings[pick])
	b.WriteString(MockDisclaimer)
	return b.String()
}

// MockSummary is the degraded summary of a document with chunkCount chunks.
func MockSummary(chunkCount int) string {
	return fmt.Sprintf("This is a mock summary of the document with %d chunks. "+
		"The document discusses various topics and contains important information. "+
		"(Mock response for development/testing purposes.)", chunkCount)
}

func mockTopics(count int) []string {
	return slices.Clone(MockTopics[:min(max(count, 0), len(MockTopics))])
}

// mockFragments splits text into the word-by-word fragments of a mock stream.
// The fragments concatenate back to text.
func mockFragments(text string) []string {
	var out []string
	for _, w := range strings.SplitAfter(text, " ") {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
