package training

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/auralab/wavesep/engine"
	"github.com/auralab/wavesep/tensorboard"
)

// AddTensorboardHandler subscribes to ValidationCompleted and pushes the
// most recent value of every epoch-history key to a tfevents file under
// {outputFolder}/tensorboard, tagged with the current epoch. The writer is
// opened lazily on the first epoch and flushed after every emission so the
// final epoch's points survive process exit.
//
// Metrics export degrades gracefully: sink failures are logged, never fatal
// to the run.
func AddTensorboardHandler(outputFolder string, e *engine.Engine, logger *zap.Logger) error {
	var writer *tensorboard.EventWriter

	return e.On(ValidationCompleted, func(eng *engine.Engine) error {
		if writer == nil {
			w, err := tensorboard.NewEventWriter(filepath.Join(outputFolder, "tensorboard"))
			if err != nil {
				logger.Warn("cannot open tensorboard sink, skipping metrics export", zap.Error(err))
				return nil
			}
			writer = w
		}

		s := eng.State
		for key, values := range s.EpochHistory {
			if len(values) == 0 {
				continue
			}
			if err := writer.AddScalar(key, values[len(values)-1], int64(s.Epoch)); err != nil {
				logger.Warn("tensorboard scalar write failed", zap.String("key", key), zap.Error(err))
				return nil
			}
		}
		if err := writer.Flush(); err != nil {
			logger.Warn("tensorboard flush failed", zap.Error(err))
		}
		return nil
	})
}
