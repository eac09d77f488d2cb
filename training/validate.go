package training

import (
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/auralab/wavesep/checkpoints"
	"github.com/auralab/wavesep/dataset"
	"github.com/auralab/wavesep/engine"
)

// AddValidateAndCheckpoint attaches the epoch-completed handler that drives
// validation and checkpointing:
//
//  1. Fire ValidationStarted.
//  2. If a validator is configured, run it over valData (a fresh full pass)
//     and fold the mean of each of its iteration metrics into the trainer's
//     epoch history under validation/{key}. The epoch is "best" iff the
//     just-appended validation/loss equals the minimum recorded so far, ties
//     counting as best. With no validator, or no validation/loss signal,
//     every epoch is best.
//  3. Fold the mean of each training iteration metric into the epoch
//     history under train/{key}.
//  4. Write the "latest" checkpoint, and also "best" when the epoch is
//     best: the unwrapped model saves its weights plus metadata, and the
//     optimizer state goes to a sibling path. I/O errors are fatal.
//  5. Record the last-written path and output folder on the run state, then
//     fire ValidationCompleted.
func AddValidateAndCheckpoint(
	outputFolder string,
	model checkpoints.Model,
	optimizer checkpoints.Optimizer,
	trainData dataset.Dataset,
	trainer *engine.Engine,
	valData dataset.Dataset,
	validator *engine.Engine,
) error {
	return trainer.On(engine.EpochCompleted, func(e *engine.Engine) error {
		if err := e.Fire(ValidationStarted); err != nil {
			return err
		}
		s := e.State

		isBest := true
		if validator != nil && valData != nil {
			if err := validator.Run(datasetSource{valData}, 1); err != nil {
				return err
			}
			for key, values := range validator.State.IterHistory {
				qualified := "validation/" + key
				s.EpochHistory[qualified] = append(s.EpochHistory[qualified], stat.Mean(values, nil))
			}
			if hist, ok := s.EpochHistory["validation/loss"]; ok && len(hist) > 0 {
				isBest = hist[len(hist)-1] == floats.Min(hist)
			}
		}

		for key, values := range s.IterHistory {
			qualified := "train/" + key
			s.EpochHistory[qualified] = append(s.EpochHistory[qualified], stat.Mean(values, nil))
		}

		outputPaths := []string{checkpoints.ModelPath(outputFolder, checkpoints.LatestTag)}
		if isBest {
			outputPaths = append(outputPaths, checkpoints.ModelPath(outputFolder, checkpoints.BestTag))
		}

		meta := &checkpoints.Metadata{
			STFTParams:  trainData.STFTParams(),
			SampleRate:  trainData.SampleRate(),
			NumChannels: trainData.NumChannels(),
			Folder:      trainData.Folder(),
			Transforms:  trainData.Transform(),
			TrainerState: checkpoints.StateSnapshot{
				Epoch:       s.Epoch,
				EpochLength: s.EpochLength,
				MaxEpochs:   s.MaxEpochs,
				Output:      s.Output,
				Metrics:     s.Metrics,
				Seed:        s.Seed,
				RunID:       s.RunID,
			},
			EpochHistory: s.EpochHistory,
		}

		target := checkpoints.Unwrap(model)
		for _, path := range outputPaths {
			if err := os.MkdirAll(checkpoints.Dir(outputFolder), 0o755); err != nil {
				return errors.Wrap(err, "create checkpoints dir")
			}
			if err := target.Save(path, meta); err != nil {
				return errors.Wrapf(err, "save model checkpoint %s", path)
			}
			state, err := optimizer.StateDict()
			if err != nil {
				return errors.Wrap(err, "collect optimizer state")
			}
			if err := checkpoints.WriteOptimizerState(checkpoints.OptimizerPath(path), state); err != nil {
				return err
			}
		}

		s.SavedModelPath = outputPaths[len(outputPaths)-1]
		s.OutputFolder = outputFolder
		return e.Fire(ValidationCompleted)
	})
}
