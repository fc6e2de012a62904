package signals

import (
	"testing"
	"time"
)

func TestTimeDecayClampedFloor(t *testing.T) {
	d := TimeDecay(100*time.Hour, 30)
	if d != 0.2 {
		t.Fatalf("decay = %v, want floor 0.2", d)
	}
}

func TestTimeDecayFreshIsOne(t *testing.T) {
	d := TimeDecay(0, 30)
	if d != 1.0 {
		t.Fatalf("decay = %v, want 1.0 at age 0", d)
	}
}

func TestFlairMultDDBoostsYoloDiscounts(t *testing.T) {
	dd, yolo := "DD", "YOLO"
	if FlairMult(&dd) <= FlairMult(&yolo) {
		t.Fatalf("DD flair should outweigh YOLO flair")
	}
}

func TestEngagementMultHighEngagementOutweighsLow(t *testing.T) {
	hi, lo := 1000, 1
	if EngagementMult(&hi, nil) <= EngagementMult(&lo, nil) {
		t.Fatalf("high engagement should multiply more than low engagement")
	}
}

func TestWeightedSentimentUnknownSourceFloor(t *testing.T) {
	w := WeightedSentiment(1, "unknown_source", 0, 30, nil, nil, nil)
	if w != 0.6 {
		t.Fatalf("weighted = %v, want 0.6 (unknown source floor, fresh, neutral engagement/flair)", w)
	}
}
