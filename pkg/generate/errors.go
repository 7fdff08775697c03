package generate

import "errors"

var (
	ErrMissingAPIKey       = errors.New("generate: OpenAI API key is required")
	ErrUnknownTool         = errors.New("unknown generation tool")
	ErrInvalidRequest      = errors.New("invalid generation request")
	ErrInsufficientCredits = errors.New("not enough credits")
	ErrCompletionFailed    = errors.New("completion request failed")
	ErrEmptyCompletion     = errors.New("model returned no content")
)
