// Package training is the orchestration layer around the engine event loop:
// it builds train/validation engine pairs with batch placement and metric
// bookkeeping attached, runs validation after every training epoch, decides
// and persists checkpoints, and reports epoch summaries to stdout and
// TensorBoard.
package training

import (
	"go.uber.org/zap"

	"github.com/auralab/wavesep/dataset"
	"github.com/auralab/wavesep/engine"
	"github.com/auralab/wavesep/tensor"
)

// Custom events layered on top of the engine's built-in set. They are
// registered on the train engine and fired explicitly by the
// validate-and-checkpoint handler (ValidationStarted/Completed) or by user
// step functions after the backward pass (BackwardsCompleted).
const (
	ValidationStarted   engine.EventName = "validation_started"
	ValidationCompleted engine.EventName = "validation_completed"
	BackwardsCompleted  engine.EventName = "backwards_completed"
)

// datasetSource adapts a dataset to the engine's data source contract.
type datasetSource struct {
	ds dataset.Dataset
}

func (s datasetSource) Len() int { return s.ds.Len() }

func (s datasetSource) Batch(i int) (map[string]interface{}, error) {
	return s.ds.Item(i)
}

// CreateTrainAndValidationEngines builds the train engine and, when a
// validation step is supplied, the validation engine. Both get the same four
// handlers attached:
//
//   - prepare batch (IterationStarted): every tensor entry in the current
//     batch is cast to float32 and moved to the resolved device in place;
//     non-tensor entries pass through untouched.
//   - book keeping (Started): fresh empty epoch, iteration, and past
//     iteration histories on the run state.
//   - add to iteration history (IterationCompleted): every key of the
//     iteration output is appended to the iteration history and to the
//     current epoch's slice of the past iteration history.
//   - clear iteration history (EpochStarted): the iteration history is
//     reset for the new epoch.
//
// A requested accelerator that is not present falls back silently to the
// CPU; that is logged, never an error.
func CreateTrainAndValidationEngines(trainStep, valStep engine.StepFunc, device tensor.DeviceType, logger *zap.Logger) (*engine.Engine, *engine.Engine) {
	trainer := engine.New(trainStep)
	trainer.RegisterEvents(ValidationStarted, ValidationCompleted, BackwardsCompleted)

	var validator *engine.Engine
	if valStep != nil {
		validator = engine.New(valStep)
	}

	resolved := tensor.Resolve(device)
	if resolved != device {
		logger.Info("requested device unavailable, falling back",
			zap.Stringer("requested", device),
			zap.Stringer("using", resolved))
	}

	prepareBatch := func(e *engine.Engine) error {
		for _, item := range e.State.Batch {
			t, ok := item.(*tensor.Tensor)
			if !ok {
				continue
			}
			t.ToFloat32().ToDevice(resolved)
		}
		return nil
	}

	bookKeeping := func(e *engine.Engine) error {
		e.State.EpochHistory = make(map[string][]float64)
		e.State.IterHistory = make(map[string][]float64)
		e.State.PastIterHistory = make(map[string][][]float64)
		return nil
	}

	addToIterHistory := func(e *engine.Engine) error {
		s := e.State
		for key, value := range s.Output {
			s.IterHistory[key] = append(s.IterHistory[key], value)
			// One inner slice per epoch; earlier epochs' slices stay
			// immutable so full within-epoch trajectories survive.
			for len(s.PastIterHistory[key]) < s.Epoch {
				s.PastIterHistory[key] = append(s.PastIterHistory[key], nil)
			}
			epochIdx := s.Epoch - 1
			s.PastIterHistory[key][epochIdx] = append(s.PastIterHistory[key][epochIdx], value)
		}
		return nil
	}

	clearIterHistory := func(e *engine.Engine) error {
		e.State.IterHistory = make(map[string][]float64)
		return nil
	}

	for _, eng := range []*engine.Engine{trainer, validator} {
		if eng == nil {
			continue
		}
		// Registration order is load-bearing: book keeping and the history
		// handlers must run before anything user code attaches later. On only
		// fails for unregistered events, and these four are built-ins
		// pre-registered by engine.New, so the errors carry no information.
		_ = eng.On(engine.IterationStarted, prepareBatch)
		_ = eng.On(engine.Started, bookKeeping)
		_ = eng.On(engine.IterationCompleted, addToIterHistory)
		_ = eng.On(engine.EpochStarted, clearIterHistory)
	}

	return trainer, validator
}
