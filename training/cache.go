package training

import (
	"math"

	"go.uber.org/zap"

	"github.com/auralab/wavesep/dataset"
	"github.com/auralab/wavesep/engine"
)

// CacheDataset makes one full pass over a dataset so any caching stage in
// its transform pipeline gets populated; with no caching stage the pass is a
// no-op walk. Progress is logged every ceil(len * logFrequency) items, at
// least every item. On completion the dataset's cache-populated flag is set.
func CacheDataset(ds dataset.Dataset, logFrequency float64, logger *zap.Logger) error {
	warm := engine.New(func(*engine.Engine, map[string]interface{}) (map[string]float64, error) {
		return nil, nil
	})

	every := int(math.Ceil(float64(ds.Len()) * logFrequency))
	if every < 1 {
		every = 1
	}

	sugar := logger.Sugar()
	warm.On(engine.IterationStarted, engine.Every(every, func(e *engine.Engine) error {
		sugar.Infof("Cached %d / %d batches", e.State.Iteration, e.State.EpochLength)
		return nil
	}))

	if err := warm.Run(datasetSource{ds}, 1); err != nil {
		return err
	}
	ds.SetCachePopulated(true)
	return nil
}
