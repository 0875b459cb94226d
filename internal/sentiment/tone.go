package sentiment

import "newsoverlay/internal/domain"

// Tone is the coarse classification used to color sentiment markers.
type Tone string

const (
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
)

// ToneOf classifies a daily sentiment score.
func ToneOf(score int) Tone {
	switch {
	case score > 0:
		return TonePositive
	case score < 0:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

// LabelTone classifies a single insight label.
func LabelTone(s domain.Sentiment) Tone {
	return ToneOf(s.Weight())
}

// Color returns the marker color for the tone.
func (t Tone) Color() string {
	switch t {
	case TonePositive:
		return "green"
	case ToneNegative:
		return "red"
	default:
		return "gray"
	}
}
