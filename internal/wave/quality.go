package wave

import "math"

// DefaultQualityScore is reported when a sample cannot be analysed.
const DefaultQualityScore = 0.5

// Weights and scales for the quality heuristic.
const (
	energyWeight   = 0.3
	clarityWeight  = 0.4
	speechWeight   = 0.3
	energyScale    = 10
	crossingScale  = 20
	clippingScale  = 10
	clippingLevel  = 0.999
	scoreRoundBase = 100
)

// QualityScore estimates how usable a buffer is as a cloning sample, in [0, 1].
// It combines RMS energy, a clipping penalty and the zero-crossing rate, which
// tracks how speech-like the signal is.
func QualityScore(buf Buffer) float64 {
	frames := buf.Frames()
	if frames == 0 {
		return 0
	}

	var (
		sumSquares float64
		crossings  int
		clipped    int
	)

	mono := mixDown(buf)
	for index, sample := range mono {
		value := float64(sample)
		sumSquares += value * value

		if math.Abs(value) >= clippingLevel {
			clipped++
		}

		if index > 0 && (mono[index-1] >= 0) != (sample >= 0) {
			crossings++
		}
	}

	rms := math.Sqrt(sumSquares / float64(frames))
	crossingRate := float64(crossings) / float64(frames)
	clippedRatio := float64(clipped) / float64(frames)

	energy := math.Min(rms*energyScale, 1)
	clarity := math.Max(0, 1-clippedRatio*clippingScale)
	speech := math.Min(crossingRate*crossingScale, 1)

	score := energy*energyWeight + clarity*clarityWeight + speech*speechWeight

	return math.Round(math.Min(score, 1)*scoreRoundBase) / scoreRoundBase
}

func mixDown(buf Buffer) []float32 {
	if len(buf.Channels) == 1 {
		return buf.Channels[0]
	}

	mono := make([]float32, buf.Frames())
	for _, channel := range buf.Channels {
		for index, sample := range channel {
			mono[index] += sample / float32(len(buf.Channels))
		}
	}

	return mono
}
