package training

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auralab/wavesep/engine"
)

// missingMetric is logged in place of a metric that was never observed.
const missingMetric = "N/A"

// AddStdoutHandler sets up two timers on the train engine — overall time
// from Started to Completed, and per-epoch time from EpochStarted to
// ValidationCompleted, so an epoch's measurement includes its validation
// pass — and logs a fixed-layout summary on every ValidationCompleted:
//
//	EPOCH SUMMARY
//	~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
//	- Epoch number: 0010 / 0010
//	- Training loss:   0.583591
//	- Validation loss: 0.137209
//	- Epoch took: 00:00:03
//	- Time since start: 00:00:32
//	~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
//	Saving to {path}.
//	Output @ {folder}
//
// An absent validation/loss (or train/loss) never crashes the summary; the
// missing value is reported as N/A.
func AddStdoutHandler(trainer *engine.Engine, logger *zap.Logger) error {
	overallTimer := engine.NewTimer()
	if err := overallTimer.Attach(trainer, engine.Started, engine.Completed); err != nil {
		return err
	}
	// The epoch timer's pause handler registers before the summary handler
	// below, so the value is final when the summary reads it.
	epochTimer := engine.NewTimer()
	if err := epochTimer.Attach(trainer, engine.EpochStarted, ValidationCompleted); err != nil {
		return err
	}

	sugar := logger.Sugar()
	return trainer.On(ValidationCompleted, func(e *engine.Engine) error {
		s := e.State

		trainLoss := missingMetric
		if hist, ok := s.EpochHistory["train/loss"]; ok && len(hist) > 0 {
			trainLoss = fmt.Sprintf("%.6f", hist[len(hist)-1])
		}
		validationLoss := missingMetric
		if hist, ok := s.EpochHistory["validation/loss"]; ok && len(hist) > 0 {
			validationLoss = fmt.Sprintf("%.6f", hist[len(hist)-1])
		}

		sugar.Infof("\n\n"+
			"EPOCH SUMMARY\n"+
			"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\n"+
			"- Epoch number: %04d / %04d\n"+
			"- Training loss:   %s\n"+
			"- Validation loss: %s\n"+
			"- Epoch took: %s\n"+
			"- Time since start: %s\n"+
			"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\n"+
			"Saving to %s.\n"+
			"Output @ %s\n",
			s.Epoch, s.MaxEpochs,
			trainLoss, validationLoss,
			formatHMS(epochTimer.Value()), formatHMS(overallTimer.Value()),
			s.SavedModelPath, s.OutputFolder)
		return nil
	})
}

// formatHMS renders a duration as HH:MM:SS.
func formatHMS(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
