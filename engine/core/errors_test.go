package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors(t *testing.T) {
	t.Run("Should unwrap service errors to their cause", func(t *testing.T) {
		err := fmt.Errorf("retrieve: %w", NewEmbeddingServiceError("embed query", context.DeadlineExceeded))
		assert.True(t, IsEmbeddingService(err))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Contains(t, err.Error(), "embedding service error during embed query")

		llmErr := NewLLMServiceError("", assert.AnError)
		assert.True(t, IsLLMService(llmErr))
		assert.ErrorIs(t, llmErr, assert.AnError)
		assert.False(t, IsEmbeddingService(llmErr))
	})

	t.Run("Should classify each error kind", func(t *testing.T) {
		assert.True(t, IsValidation(fmt.Errorf("wrap: %w", NewValidationError("Question cannot be empty"))))
		assert.True(t, IsEmptyDocument(NewEmptyDocumentError("a.docx")))
		assert.True(t, IsNoRelevantDocuments(NewNoRelevantDocumentsError("q")))
		assert.False(t, IsValidation(assert.AnError))
	})

	t.Run("Should render stable messages", func(t *testing.T) {
		assert.Equal(t, "Question cannot be empty", NewValidationError("Question cannot be empty").Error())
		assert.Equal(t, `document "a.docx" is empty`, NewEmptyDocumentError("a.docx").Error())
		assert.Equal(t, "document is empty", NewEmptyDocumentError("").Error())
		assert.Equal(t, "No relevant documents found", NewNoRelevantDocumentsError("q").Error())
		assert.Equal(t, "llm service error", NewLLMServiceError("", nil).Error())
	})
}

func TestCloneMap(t *testing.T) {
	t.Run("Should deep copy nested values", func(t *testing.T) {
		src := map[string]any{"file_name": "a.docx", "tags": map[string]any{"k": "v"}}
		dst := CloneMap(src)
		dst["tags"].(map[string]any)["k"] = "changed"
		dst["file_name"] = "b.docx"
		assert.Equal(t, "v", src["tags"].(map[string]any)["k"])
		assert.Equal(t, "a.docx", src["file_name"])
	})

	t.Run("Should return an empty map for nil", func(t *testing.T) {
		assert.NotNil(t, CloneMap(nil))
	})
}

func TestProblem(t *testing.T) {
	t.Run("Should fill defaults and merge extras", func(t *testing.T) {
		p := NormalizeProblem(&Problem{Status: 404, Detail: "No relevant documents found", Extras: map[string]any{
			"detail": "No relevant documents found",
			"status": 999,
		}})
		body := BuildProblemBody(p)
		assert.Equal(t, "Not Found", body["error"])
		assert.Equal(t, 404, body["status"])
		assert.Equal(t, "about:blank", body["type"])
		assert.Equal(t, "No relevant documents found", body["detail"])
	})
}
