// Package predict extracts cluster-model features from an incident and
// exposes a Predictor port for scoring how anomalous/confident an incident's
// trajectory looks. No trained model ships with this repo — see NullPredictor.
package predict

import (
	"time"

	"github.com/transitwatch/transitwatch/internal/store"
)

// rushHours mirrors the original clustering model's feature extraction:
// morning and evening commute windows, local time.
var rushHours = map[int]struct{}{
	7: {}, 8: {}, 9: {}, 16: {}, 17: {}, 18: {},
}

// Features is the fixed-width feature vector fed to a clustering predictor.
type Features struct {
	LocationID  int64
	TypeID      int64
	TrustScore  float64
	Resolved    float64
	Hour        float64
	DayOfWeek   float64
	IsRushHour  float64
}

// Transform builds the feature vector for an incident the same way the
// predictor this was ported from did: hour/day-of-week/rush-hour derived
// from the incident's creation time, plus its type, location, trust score,
// and resolved flag.
func Transform(inc store.Incident) Features {
	hour := inc.CreatedAt.Hour()
	_, isRush := rushHours[hour]

	resolved := 0.0
	if inc.Status == store.StatusResolved {
		resolved = 1.0
	}

	rush := 0.0
	if isRush {
		rush = 1.0
	}

	return Features{
		LocationID: inc.LocationID,
		TypeID:     inc.TypeID,
		TrustScore: inc.TrustScore,
		Resolved:   resolved,
		Hour:       float64(hour),
		DayOfWeek:  float64(weekday(inc.CreatedAt)),
		IsRushHour: rush,
	}
}

func weekday(t time.Time) int {
	// time.Weekday has Sunday = 0; the model this feature set is ported
	// from uses Python's Monday = 0 convention.
	return (int(t.Weekday()) + 6) % 7
}

// Prediction is a scored outcome for an incident: which cluster it falls
// into, and how confident that assignment is.
type Prediction struct {
	Cluster    int
	Confidence float64
}

// Predictor scores an incident's feature vector.
type Predictor interface {
	Predict(f Features) (Prediction, error)
}

// NullPredictor is a Predictor that makes no claims about an incident: it
// always reports cluster 0 with zero confidence. It exists so callers can be
// wired against the Predictor port today, and swapped for a trained model
// later without an interface change.
type NullPredictor struct{}

// Predict implements Predictor.
func (NullPredictor) Predict(f Features) (Prediction, error) {
	return Prediction{Cluster: 0, Confidence: 0}, nil
}
