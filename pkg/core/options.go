package core

// IngestOptions contains options for ingestion.
type IngestOptions struct {
	// Modality is the input modality. Defaults to ModalityText.
	Modality Modality

	// MemoryType is the classification tag. Defaults to "note".
	MemoryType string

	// Source records where the content came from. Defaults to "session".
	Source string

	// Attributes carries optional metadata stored with each chunk.
	Attributes map[string]string

	// SkipReinforcement disables duplicate resolution: every chunk creates
	// a new memory. Used by bulk imports that deduplicate upstream.
	SkipReinforcement bool
}

// IngestOption configures one ingestion call.
type IngestOption func(*IngestOptions)

// WithModality sets the input modality.
func WithModality(m Modality) IngestOption {
	return func(opts *IngestOptions) {
		opts.Modality = m
	}
}

// WithMemoryType sets the classification tag.
func WithMemoryType(memoryType string) IngestOption {
	return func(opts *IngestOptions) {
		opts.MemoryType = memoryType
	}
}

// WithSource sets the content source.
func WithSource(source string) IngestOption {
	return func(opts *IngestOptions) {
		opts.Source = source
	}
}

// WithAttributes attaches metadata to every chunk of the ingestion.
func WithAttributes(attributes map[string]string) IngestOption {
	return func(opts *IngestOptions) {
		opts.Attributes = attributes
	}
}

// WithoutReinforcement disables duplicate resolution for this call.
func WithoutReinforcement() IngestOption {
	return func(opts *IngestOptions) {
		opts.SkipReinforcement = true
	}
}

func applyIngestOptions(opts []IngestOption) *IngestOptions {
	options := &IngestOptions{
		Modality:   ModalityText,
		MemoryType: "note",
		Source:     "session",
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// RetrieveOptions contains options for retrieval.
type RetrieveOptions struct {
	// Modalities restricts retrieval to the given modalities. Empty means
	// all; mixed-space sets trigger one search per space with the results
	// merged before truncation.
	Modalities []Modality

	// MemoryTypes filters candidates to the given classification tags.
	MemoryTypes []string

	// Limit caps the evidence set size.
	Limit int

	// MinScore overrides the combined-score threshold.
	MinScore float64
}

// RetrieveOption configures one retrieval call.
type RetrieveOption func(*RetrieveOptions)

// WithModalities restricts retrieval to the given modalities.
func WithModalities(modalities ...Modality) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Modalities = modalities
	}
}

// WithMemoryTypes filters retrieval to the given classification tags.
func WithMemoryTypes(memoryTypes ...string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.MemoryTypes = memoryTypes
	}
}

// WithLimit caps the evidence set size.
func WithLimit(limit int) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Limit = limit
	}
}

// WithMinScore overrides the combined-score threshold.
func WithMinScore(minScore float64) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.MinScore = minScore
	}
}

func applyRetrieveOptions(opts []RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
