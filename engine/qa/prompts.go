package qa

import (
	"strings"

	"github.com/compozy/docqa/engine/knowledge/retriever"
)

const singleTurnPrompt = `Answer the question in detail based on the following context only:
{context}
Guidelines for answering:
1. Do not refer to any external sources.
2. Do not provide any irrelevant information.
3. No need to start with text like 'based on the context provided' or 'according to the context'.

Question: {question}`

const reformulationPrompt = `Given a chat history and the latest user question which might reference context in the chat history, ` +
	`formulate a standalone question which can be understood without the chat history. ` +
	`Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`

const answerSystemPrompt = `You are a helpful assistant. Answer questions with detailed and accurate information strictly based on the given context.
Ensure your responses are concise, relevant, and do not include any references to external sources or unnecessary details.
Avoid introductory phrases like "Based on the context provided"

Context:
{context}`

// BuildContext joins chunk texts one per line in retrieval order.
func BuildContext(results []retriever.Result) string {
	texts := make([]string, len(results))
	for i := range results {
		texts[i] = results[i].Text
	}
	return strings.Join(texts, "\n")
}

func renderSingleTurnPrompt(context, question string) string {
	return strings.NewReplacer("{context}", context, "{question}", question).Replace(singleTurnPrompt)
}

func renderAnswerSystemPrompt(context string) string {
	return strings.NewReplacer("{context}", context).Replace(answerSystemPrompt)
}
