package errs

import "errors"

// Failure categories for the processing pipeline. Call sites wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	ErrDocumentProcessing = errors.New("document processing failed")
	ErrDocumentDownload   = errors.New("document download failed")
	ErrVectorStore        = errors.New("vector store operation failed")
	ErrEmbedding          = errors.New("embedding generation failed")
	ErrLLM                = errors.New("llm operation failed")
	ErrNoContent          = errors.New("no documents could be processed")
	ErrUnavailable        = errors.New("capability not configured")
	ErrInvalid            = errors.New("invalid request")
)

func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
