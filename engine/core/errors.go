package core

import (
	"errors"
	"fmt"
)

// ValidationError reports a request that failed input validation. Its message
// is safe to show to the caller.
type ValidationError struct {
	Message string
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// EmptyDocumentError reports a document without extractable text.
type EmptyDocumentError struct {
	Source string
}

func NewEmptyDocumentError(source string) *EmptyDocumentError {
	return &EmptyDocumentError{Source: source}
}

func (e *EmptyDocumentError) Error() string {
	if e.Source == "" {
		return "document is empty"
	}
	return fmt.Sprintf("document %q is empty", e.Source)
}

// EmbeddingServiceError wraps a failure of the embedding service.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func NewEmbeddingServiceError(op string, err error) *EmbeddingServiceError {
	return &EmbeddingServiceError{Op: op, Err: err}
}

func (e *EmbeddingServiceError) Error() string {
	return serviceErrorText("embedding service", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

// LLMServiceError wraps a failure of the chat model.
type LLMServiceError struct {
	Op  string
	Err error
}

func NewLLMServiceError(op string, err error) *LLMServiceError {
	return &LLMServiceError{Op: op, Err: err}
}

func (e *LLMServiceError) Error() string {
	return serviceErrorText("llm service", e.Op, e.Err)
}

func (e *LLMServiceError) Unwrap() error {
	return e.Err
}

// NoRelevantDocumentsError reports a retrieval that produced no chunks.
type NoRelevantDocumentsError struct {
	Query string
}

func NewNoRelevantDocumentsError(query string) *NoRelevantDocumentsError {
	return &NoRelevantDocumentsError{Query: query}
}

func (e *NoRelevantDocumentsError) Error() string {
	return "No relevant documents found"
}

func serviceErrorText(service, op string, err error) string {
	switch {
	case op == "" && err == nil:
		return service + " error"
	case op == "":
		return fmt.Sprintf("%s error: %v", service, err)
	case err == nil:
		return fmt.Sprintf("%s error during %s", service, op)
	default:
		return fmt.Sprintf("%s error during %s: %v", service, op, err)
	}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsEmptyDocument(err error) bool {
	var target *EmptyDocumentError
	return errors.As(err, &target)
}

func IsEmbeddingService(err error) bool {
	var target *EmbeddingServiceError
	return errors.As(err, &target)
}

func IsLLMService(err error) bool {
	var target *LLMServiceError
	return errors.As(err, &target)
}

func IsNoRelevantDocuments(err error) bool {
	var target *NoRelevantDocumentsError
	return errors.As(err, &target)
}
