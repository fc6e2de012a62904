// Package signals implements acquisition & scoring: ticker extraction and
// validation, per-source weighting, time decay, engagement/flair
// multipliers, and the 24h/200-entry cache the rest of the agent reads
// from.
package signals

import (
	"math"
	"strings"
	"time"
)

// SourceWeight is the per-source constant in the weighted-sentiment
// formula.
var SourceWeight = map[string]float64{
	"fintwit":   0.95,
	"stocktwits": 0.85,
	"investing": 0.8,
	"stocks":    0.75,
	"options":   0.7,
	"wsb":       0.6,
}

func sourceWeight(source string) float64 {
	if w, ok := SourceWeight[strings.ToLower(source)]; ok {
		return w
	}
	return 0.6 // unknown sources default to WSB's floor weight
}

// TimeDecay is the exponential half-life decay clamped to [0.2, 1.0].
func TimeDecay(age time.Duration, halfLifeMinutes float64) float64 {
	if halfLifeMinutes <= 0 {
		return 1.0
	}
	minutes := age.Minutes()
	decay := math.Pow(0.5, minutes/halfLifeMinutes)
	if decay < 0.2 {
		return 0.2
	}
	if decay > 1.0 {
		return 1.0
	}
	return decay
}

// engagementBucketMult buckets a count into a multiplier; higher
// engagement buckets weight more.
func engagementBucketMult(count int) float64 {
	switch {
	case count >= 500:
		return 1.5
	case count >= 100:
		return 1.3
	case count >= 20:
		return 1.1
	case count >= 5:
		return 1.0
	default:
		return 0.85
	}
}

// EngagementMult averages the bucketed upvote and comment multipliers.
func EngagementMult(upvotes, comments *int) float64 {
	up, have := 1.0, 0
	if upvotes != nil {
		up = engagementBucketMult(*upvotes)
		have++
	}
	cm := 1.0
	if comments != nil {
		cm = engagementBucketMult(*comments)
		have++
	}
	if have == 0 {
		return 1.0
	}
	return (up + cm) / 2
}

// flairMult discounts post flair: DD is a strong positive signal,
// YOLO/Meme/Gain/Loss are noise.
var flairMult = map[string]float64{
	"dd":   1.5,
	"yolo": 0.5,
	"meme": 0.4,
	"gain": 0.6,
	"loss": 0.6,
}

// FlairMult looks up the flair multiplier; an unrecognized or absent flair
// is neutral.
func FlairMult(flair *string) float64 {
	if flair == nil {
		return 1.0
	}
	if m, ok := flairMult[strings.ToLower(*flair)]; ok {
		return m
	}
	return 1.0
}

// WeightedSentiment computes raw sentiment scaled by source weight, time
// decay, engagement and flair multipliers.
func WeightedSentiment(rawSentiment float64, source string, age time.Duration, halfLifeMinutes float64, upvotes, comments *int, flair *string) float64 {
	return rawSentiment * sourceWeight(source) * TimeDecay(age, halfLifeMinutes) * EngagementMult(upvotes, comments) * FlairMult(flair)
}
