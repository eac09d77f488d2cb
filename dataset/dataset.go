// Package dataset defines the contract the orchestration layer consumes
// from the separation toolkit's dataset pipeline: indexed access to batches
// of named tensors, the descriptor fields persisted into checkpoint
// metadata, and the cache-populated flag set by the cache warmer.
package dataset

// STFTParams describes the short-time Fourier transform settings a dataset
// was built with.
type STFTParams struct {
	WindowLength int    `json:"window_length" yaml:"window_length"`
	HopLength    int    `json:"hop_length" yaml:"hop_length"`
	WindowType   string `json:"window_type" yaml:"window_type"`
}

// Dataset is a sequence of batches plus the descriptor metadata saved
// alongside checkpoints. Item returns a mapping of named tensors; entries
// that are not tensors pass through batch preparation unchanged.
type Dataset interface {
	Len() int
	Item(i int) (map[string]interface{}, error)

	STFTParams() STFTParams
	SampleRate() int
	NumChannels() int
	Folder() string
	Transform() []string

	// CachePopulated is a flag the dataset's own transform pipeline
	// interprets; with no caching stage it is a no-op pass-through.
	CachePopulated() bool
	SetCachePopulated(populated bool)
}
