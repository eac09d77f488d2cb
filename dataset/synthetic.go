package dataset

import (
	"fmt"
	"math"

	"github.com/auralab/wavesep/tensor"
)

// SyntheticDataset produces sine-mixture items on the fly. It exists so the
// demo app and tests can exercise the full training pipeline without the
// audio loading stack.
type SyntheticDataset struct {
	length      int
	numSamples  int
	numSources  int
	sampleRate  int
	numChannels int
	folder      string
	transform   []string
	stftParams  STFTParams

	cachePopulated bool
}

// NewSyntheticDataset creates a dataset of length items, each holding a mix
// waveform of numSamples samples and its numSources source waveforms.
func NewSyntheticDataset(length, numSamples, numSources int) *SyntheticDataset {
	return &SyntheticDataset{
		length:      length,
		numSamples:  numSamples,
		numSources:  numSources,
		sampleRate:  44100,
		numChannels: 1,
		folder:      "synthetic",
		transform:   []string{"SumSources", "MagnitudeSpectrumApproximation"},
		stftParams: STFTParams{
			WindowLength: 2048,
			HopLength:    512,
			WindowType:   "sqrt_hann",
		},
	}
}

func (d *SyntheticDataset) Len() int { return d.length }

// Item synthesizes the i-th batch: each source is a sine at a frequency
// keyed off (i, source index) and the mix is their sum.
func (d *SyntheticDataset) Item(i int) (map[string]interface{}, error) {
	if i < 0 || i >= d.length {
		return nil, fmt.Errorf("item index %d out of range [0, %d)", i, d.length)
	}

	mix := make([]float32, d.numSamples)
	sources := make([]float32, d.numSources*d.numSamples)
	for s := 0; s < d.numSources; s++ {
		freq := 220.0 * float64(s+1) * (1.0 + float64(i)/float64(d.length))
		for n := 0; n < d.numSamples; n++ {
			v := float32(math.Sin(2 * math.Pi * freq * float64(n) / float64(d.sampleRate)))
			sources[s*d.numSamples+n] = v
			mix[n] += v
		}
	}

	mixTensor, err := tensor.NewFloat32([]int{d.numChannels, d.numSamples}, mix)
	if err != nil {
		return nil, err
	}
	sourceTensor, err := tensor.NewFloat32([]int{d.numSources, d.numSamples}, sources)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"mix":     mixTensor,
		"sources": sourceTensor,
		"index":   i,
	}, nil
}

func (d *SyntheticDataset) STFTParams() STFTParams { return d.stftParams }
func (d *SyntheticDataset) SampleRate() int        { return d.sampleRate }
func (d *SyntheticDataset) NumChannels() int       { return d.numChannels }
func (d *SyntheticDataset) Folder() string         { return d.folder }
func (d *SyntheticDataset) Transform() []string    { return d.transform }

func (d *SyntheticDataset) CachePopulated() bool { return d.cachePopulated }
func (d *SyntheticDataset) SetCachePopulated(populated bool) {
	d.cachePopulated = populated
}
