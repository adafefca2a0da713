// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps one credentialed endpoint (e.g., an OpenAI account or a
// Groq account) and exposes model discovery plus single-shot and streaming
// completion. The cascade in internal/engine/cascade drives providers in a
// fixed preference order and decides which model to request per attempt, so a
// Provider deliberately carries no model state of its own.
//
// Failures are classified through the sentinel errors in errors.go; see
// [Classify]. Implementations must be safe for concurrent use.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn as sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest describes one completion attempt against a specific model.
type CompletionRequest struct {
	// Model is the provider-specific model identifier to use for this attempt.
	// The cascade fills this in from its model ranking; providers must not
	// substitute a different model silently.
	Model string

	// Messages is the full ordered conversation context, system message first.
	Messages []Message

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the result of a successful completion.
type CompletionResponse struct {
	// Content is the assistant's reply text. Never empty on success;
	// providers map empty replies to an error instead.
	Content string

	// Model echoes the model that actually served the request.
	Model string
}

// Chunk is one fragment of a streamed completion. The final chunk of a
// stream carries a non-empty FinishReason.
type Chunk struct {
	Text         string
	FinishReason string
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the short identifier used in config, logs, and the
	// persisted cache state (e.g., "openai", "groq").
	Name() string

	// ListModels returns the identifiers of all models the credential can
	// access, in the order the backend reports them. The cascade filters and
	// ranks this list; providers must not pre-sort or pre-filter it.
	ListModels(ctx context.Context) ([]string, error)

	// Complete performs a blocking completion against req.Model.
	// Errors must wrap one of the classification sentinels where the failure
	// class is known; see [Classify].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamComplete starts a streaming completion against req.Model and
	// returns a channel of fragments. The channel is closed when the stream
	// ends or ctx is cancelled. A mid-stream failure is reported as a final
	// chunk with FinishReason "error".
	//
	// A non-nil error return means the stream could not be started at all;
	// such errors carry the same classification sentinels as Complete.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
