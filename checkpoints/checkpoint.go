// Package checkpoints owns the on-disk layout and metadata of training
// checkpoints. Two slots exist per run: "latest", overwritten every epoch,
// and "best", overwritten only when the tracked validation loss reaches its
// minimum so far. Model weight serialization itself belongs to the model
// collaborator; this package decides when and where, and persists the
// optimizer state and metadata around it.
package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/auralab/wavesep/dataset"
)

const (
	// LatestTag and BestTag name the two checkpoint slots.
	LatestTag = "latest"
	BestTag   = "best"

	modelSuffix     = "model.json"
	optimizerSuffix = "optimizer.json"
)

// Model is the trained model collaborator: it knows how to persist its own
// weights together with an arbitrary metadata payload.
type Model interface {
	Save(path string, meta *Metadata) error
}

// ParallelModel is implemented by data-parallel wrappers that hold the real
// model inside.
type ParallelModel interface {
	Module() Model
}

// Unwrap peels a data-parallel wrapper off a model, if there is one.
func Unwrap(m Model) Model {
	if p, ok := m.(ParallelModel); ok {
		return p.Module()
	}
	return m
}

// Optimizer exposes serializable optimizer state.
type Optimizer interface {
	StateDict() (*OptimizerState, error)
}

// OptimizerState captures optimizer-specific state (momentum, variance, ...).
type OptimizerState struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data,omitempty"`
}

// OptimizerTensor is one optimizer state tensor.
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"`
}

// StateSnapshot is the run-state portion of checkpoint metadata.
type StateSnapshot struct {
	Epoch       int                `json:"epoch"`
	EpochLength int                `json:"epoch_length"`
	MaxEpochs   int                `json:"max_epochs"`
	Output      map[string]float64 `json:"output"`
	Metrics     map[string]float64 `json:"metrics"`
	Seed        int64              `json:"seed"`
	RunID       string             `json:"run_id"`
}

// Metadata is the descriptor bundle stored alongside model weights: the
// dataset descriptor, a run-state snapshot, and the full epoch history.
type Metadata struct {
	STFTParams   dataset.STFTParams   `json:"stft_params"`
	SampleRate   int                  `json:"sample_rate"`
	NumChannels  int                  `json:"num_channels"`
	Folder       string               `json:"folder"`
	Transforms   []string             `json:"transforms"`
	TrainerState StateSnapshot        `json:"trainer_state"`
	EpochHistory map[string][]float64 `json:"epoch_history"`
}

// Dir returns the checkpoints directory under an output folder.
func Dir(outputFolder string) string {
	return filepath.Join(outputFolder, "checkpoints")
}

// ModelPath returns the model checkpoint path for a slot tag.
func ModelPath(outputFolder, tag string) string {
	return filepath.Join(Dir(outputFolder), tag+"."+modelSuffix)
}

// OptimizerPath derives the sibling optimizer path from a model path by
// swapping the model suffix for the optimizer suffix.
func OptimizerPath(modelPath string) string {
	if strings.HasSuffix(modelPath, modelSuffix) {
		return strings.TrimSuffix(modelPath, modelSuffix) + optimizerSuffix
	}
	return modelPath + "." + optimizerSuffix
}

// AtomicWriteJSON writes v as indented JSON via a temp file and rename, so a
// failed write never clobbers a valid prior checkpoint file.
func AtomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint file")
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temp file for %s", path)
	}
	// CreateTemp opens 0600; widen before the rename so checkpoint files
	// match their 0755 directories.
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "chmod temp file for %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename into %s", path)
}

// WriteOptimizerState persists optimizer state next to a model checkpoint.
func WriteOptimizerState(path string, state *OptimizerState) error {
	return AtomicWriteJSON(path, state)
}

// ReadOptimizerState loads optimizer state back, for resumption tooling
// built on top of the checkpoint files.
func ReadOptimizerState(path string) (*OptimizerState, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open optimizer state")
	}
	defer file.Close()

	var state OptimizerState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &state, nil
}

// ReadMetadata loads the metadata block a cooperating model saved with
// SavedModel-style layout (a JSON object holding a "metadata" field). Models
// that persist weights elsewhere can still reuse this for their sidecar.
func ReadMetadata(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint")
	}
	defer file.Close()

	var payload struct {
		Metadata Metadata `json:"metadata"`
	}
	if err := json.NewDecoder(file).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &payload.Metadata, nil
}
