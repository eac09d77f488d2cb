package checkpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/auralab/wavesep/dataset"
)

func TestPathLayout(t *testing.T) {
	if got := Dir("out"); got != filepath.Join("out", "checkpoints") {
		t.Errorf("Dir = %q", got)
	}
	if got := ModelPath("out", LatestTag); got != filepath.Join("out", "checkpoints", "latest.model.json") {
		t.Errorf("latest model path = %q", got)
	}
	if got := ModelPath("out", BestTag); got != filepath.Join("out", "checkpoints", "best.model.json") {
		t.Errorf("best model path = %q", got)
	}
}

func TestOptimizerPathSuffixSwap(t *testing.T) {
	modelPath := filepath.Join("out", "checkpoints", "best.model.json")
	want := filepath.Join("out", "checkpoints", "best.optimizer.json")
	if got := OptimizerPath(modelPath); got != want {
		t.Errorf("OptimizerPath = %q, want %q", got, want)
	}
}

func TestOptimizerStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.optimizer.json")
	state := &OptimizerState{
		Type:       "Adam",
		Parameters: map[string]interface{}{"lr": 0.001, "beta1": 0.9},
		StateData: []OptimizerTensor{
			{Name: "layer1.m", Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}, StateType: "m"},
			{Name: "layer1.v", Shape: []int{2, 2}, Data: []float32{5, 6, 7, 8}, StateType: "v"},
		},
	}

	if err := WriteOptimizerState(path, state); err != nil {
		t.Fatalf("WriteOptimizerState failed: %v", err)
	}
	loaded, err := ReadOptimizerState(path)
	if err != nil {
		t.Fatalf("ReadOptimizerState failed: %v", err)
	}

	if loaded.Type != state.Type {
		t.Errorf("Type = %q, want %q", loaded.Type, state.Type)
	}
	if len(loaded.StateData) != 2 {
		t.Fatalf("StateData length = %d, want 2", len(loaded.StateData))
	}
	if loaded.StateData[0].Name != "layer1.m" || loaded.StateData[0].Data[3] != 4 {
		t.Errorf("StateData[0] = %+v", loaded.StateData[0])
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "best.model.json")

	if err := AtomicWriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("AtomicWriteJSON failed: %v", err)
	}
	// Overwrite in place, as the best slot is on every improvement.
	if err := AtomicWriteJSON(path, map[string]int{"a": 2}); err != nil {
		t.Fatalf("second AtomicWriteJSON failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only the final file", names)
	}
}

func TestAtomicWriteProducesReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.model.json")
	if err := AtomicWriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("AtomicWriteJSON failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	// The rename must not carry over the temp file's 0600 mode.
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("checkpoint file mode = %o, want 644", got)
	}
}

func TestAtomicWriteFailsWithoutDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "latest.model.json")
	if err := AtomicWriteJSON(path, map[string]int{}); err == nil {
		t.Error("AtomicWriteJSON succeeded into a missing directory")
	}
}

type plainModel struct {
	saved string
}

func (m *plainModel) Save(path string, meta *Metadata) error {
	m.saved = path
	return nil
}

type parallelWrapper struct {
	inner Model
}

func (p *parallelWrapper) Save(path string, meta *Metadata) error { return nil }
func (p *parallelWrapper) Module() Model                          { return p.inner }

func TestUnwrap(t *testing.T) {
	inner := &plainModel{}
	if got := Unwrap(inner); got != Model(inner) {
		t.Error("Unwrap changed an unwrapped model")
	}
	if got := Unwrap(&parallelWrapper{inner: inner}); got != Model(inner) {
		t.Error("Unwrap did not peel the parallel wrapper")
	}
}

func TestReadMetadataFromModelPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.model.json")
	meta := &Metadata{
		STFTParams:  dataset.STFTParams{WindowLength: 1024, HopLength: 256, WindowType: "hann"},
		SampleRate:  16000,
		NumChannels: 2,
		Folder:      "musdb",
		Transforms:  []string{"Cache", "SumSources"},
		TrainerState: StateSnapshot{
			Epoch: 7, EpochLength: 100, MaxEpochs: 10, Seed: 42, RunID: "run-1",
			Output:  map[string]float64{"loss": 0.1},
			Metrics: map[string]float64{},
		},
		EpochHistory: map[string][]float64{"train/loss": {0.5, 0.3, 0.1}},
	}
	if err := AtomicWriteJSON(path, map[string]interface{}{
		"weights":  []float64{1, 2, 3},
		"metadata": meta,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if loaded.SampleRate != 16000 || loaded.NumChannels != 2 || loaded.Folder != "musdb" {
		t.Errorf("descriptor fields = %+v", loaded)
	}
	if loaded.TrainerState.Epoch != 7 || loaded.TrainerState.Seed != 42 {
		t.Errorf("trainer state = %+v", loaded.TrainerState)
	}
	if got := loaded.EpochHistory["train/loss"]; len(got) != 3 || got[2] != 0.1 {
		t.Errorf("epoch history = %v", got)
	}
	if loaded.STFTParams.WindowLength != 1024 {
		t.Errorf("stft params = %+v", loaded.STFTParams)
	}
}
