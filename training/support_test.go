package training

import (
	"strings"
	"sync"

	"github.com/auralab/wavesep/checkpoints"
	"github.com/auralab/wavesep/dataset"
	"github.com/auralab/wavesep/engine"
	"github.com/auralab/wavesep/tensor"
)

// stubDataset is a minimal dataset for orchestration tests.
type stubDataset struct {
	length         int
	cachePopulated bool
}

func newStubDataset(length int) *stubDataset {
	return &stubDataset{length: length}
}

func (d *stubDataset) Len() int { return d.length }

func (d *stubDataset) Item(i int) (map[string]interface{}, error) {
	mix, err := tensor.NewInt32([]int{4}, []int32{1, 2, 3, 4})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"mix":   mix,
		"index": i,
	}, nil
}

func (d *stubDataset) STFTParams() dataset.STFTParams {
	return dataset.STFTParams{WindowLength: 256, HopLength: 64, WindowType: "sqrt_hann"}
}

func (d *stubDataset) SampleRate() int     { return 8000 }
func (d *stubDataset) NumChannels() int    { return 1 }
func (d *stubDataset) Folder() string      { return "stub" }
func (d *stubDataset) Transform() []string { return []string{"Cache"} }

func (d *stubDataset) CachePopulated() bool { return d.cachePopulated }
func (d *stubDataset) SetCachePopulated(populated bool) {
	d.cachePopulated = populated
}

// recordingModel implements checkpoints.Model and remembers every save.
type recordingModel struct {
	mu    sync.Mutex
	paths []string
	metas []*checkpoints.Metadata
	// persist controls whether saves actually hit disk.
	persist bool
}

func (m *recordingModel) Save(path string, meta *checkpoints.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *meta
	m.paths = append(m.paths, path)
	m.metas = append(m.metas, &copied)
	if !m.persist {
		return nil
	}
	return checkpoints.AtomicWriteJSON(path, map[string]interface{}{
		"weights":  []float64{0.5},
		"metadata": meta,
	})
}

// savesTo returns the epochs at which the model was saved to a path with
// the given suffix.
func (m *recordingModel) savesTo(suffix string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var epochs []int
	for i, p := range m.paths {
		if strings.HasSuffix(p, suffix) {
			epochs = append(epochs, m.metas[i].TrainerState.Epoch)
		}
	}
	return epochs
}

// wrappedModel mimics a data-parallel wrapper around a real model.
type wrappedModel struct {
	inner checkpoints.Model
}

func (w *wrappedModel) Save(path string, meta *checkpoints.Metadata) error {
	panic("Save called on the wrapper, not the unwrapped module")
}

func (w *wrappedModel) Module() checkpoints.Model { return w.inner }

// stubOptimizer returns fixed SGD-shaped state.
type stubOptimizer struct {
	fail error
}

func (o *stubOptimizer) StateDict() (*checkpoints.OptimizerState, error) {
	if o.fail != nil {
		return nil, o.fail
	}
	return &checkpoints.OptimizerState{
		Type:       "SGD",
		Parameters: map[string]interface{}{"lr": 0.01},
	}, nil
}

// constantLossStep returns the same loss every iteration.
func constantLossStep(loss float64) engine.StepFunc {
	return func(*engine.Engine, map[string]interface{}) (map[string]float64, error) {
		return map[string]float64{"loss": loss}, nil
	}
}

// scriptedLossStep returns losses from a sequence, one per call, repeating
// the final value when the script runs out.
func scriptedLossStep(script []float64) engine.StepFunc {
	call := 0
	return func(*engine.Engine, map[string]interface{}) (map[string]float64, error) {
		idx := call
		if idx >= len(script) {
			idx = len(script) - 1
		}
		call++
		return map[string]float64{"loss": script[idx]}, nil
	}
}
