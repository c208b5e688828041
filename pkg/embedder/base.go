// Package embedder provides interfaces for embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy, plus a per-space registry: text-born content (text, documents,
// audio transcripts) embeds into the text space, image references into the
// image space. The two spaces are never compared against each other.
package embedder

import "context"

// Space names for the registry.
const (
	// SpaceText is the vector space for text-born content.
	SpaceText = "text"

	// SpaceImage is the vector space for image references.
	SpaceImage = "image"
)

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a single input into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input to embed
	//
	// Returns the embedding vector and any error.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple inputs into vector embeddings.
	//
	// This method is more efficient than calling Embed multiple times,
	// as it can batch process requests.
	//
	// Returns a slice of embedding vectors, order matching the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of vectors produced by this
	// provider. All vectors within one space share this dimension.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}

// Registry maps vector spaces to their embedding providers.
//
// The text provider is mandatory. The image provider is optional; image
// ingestion fails cleanly when it is absent.
type Registry struct {
	text  Provider
	image Provider
}

// NewRegistry creates a Registry. The image provider may be nil.
func NewRegistry(text, image Provider) *Registry {
	return &Registry{text: text, image: image}
}

// ForSpace returns the provider for the named space, or nil when the space
// has no provider configured.
func (r *Registry) ForSpace(space string) Provider {
	switch space {
	case SpaceImage:
		return r.image
	default:
		return r.text
	}
}

// Close closes all registered providers, returning the first error.
func (r *Registry) Close() error {
	var firstErr error
	if r.text != nil {
		if err := r.text.Close(); err != nil {
			firstErr = err
		}
	}
	if r.image != nil {
		if err := r.image.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
