package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrInternal
	ErrNoContent
	ErrDocumentProcessing
	ErrDocumentDownload
	ErrVectorStore
	ErrEmbedding
	ErrLLM
	ErrAIUnavailable
)
