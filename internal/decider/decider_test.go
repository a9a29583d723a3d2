package decider

import (
	"errors"
	"testing"

	"github.com/transitwatch/transitwatch/internal/geo"
)

func trustedInput(distKm, delayMin float64) Input {
	return Input{
		ReporterLocation: geo.Point{Lat: 0, Lon: 0},
		TargetLocation:   geo.Point{Lat: 0, Lon: kmToLonDegrees(distKm)},
		DelayMinutes:     &delayMin,
		User:             UserStats{TrustScore: 0.95, ReportsMade: 50},
	}
}

// kmToLonDegrees is a rough approximation (at the equator, 1 degree of
// longitude is about 111km) good enough to construct test fixtures with a
// known approximate haversine distance.
func kmToLonDegrees(km float64) float64 {
	return km / 111.0
}

func TestDecideAcceptsNearbyTrustedReport(t *testing.T) {
	in := trustedInput(1.0, 5.0)
	accept, prob, err := Decide(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accept {
		t.Errorf("expected acceptance, got prob=%v", prob)
	}
	if prob < DecideMin {
		t.Errorf("accepted report should have prob >= %v, got %v", DecideMin, prob)
	}
}

func TestDecideRejectsDistanceOverMax(t *testing.T) {
	in := trustedInput(50.0, 5.0)
	accept, prob, err := Decide(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accept {
		t.Errorf("expected rejection for distance over max")
	}
	if prob != 0 {
		t.Errorf("expected prob 0 for instant-reject, got %v", prob)
	}
}

func TestDecideRejectsTimeOverMax(t *testing.T) {
	in := trustedInput(1.0, 400.0)
	accept, prob, err := Decide(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accept {
		t.Errorf("expected rejection for time diff over max")
	}
	if prob != 0 {
		t.Errorf("expected prob 0 for instant-reject, got %v", prob)
	}
}

func TestDecideRejectsLowTrustUser(t *testing.T) {
	in := Input{
		ReporterLocation: geo.Point{Lat: 0, Lon: 0},
		TargetLocation:   geo.Point{Lat: 0, Lon: 0},
		DelayMinutes:     nil,
		User:             UserStats{TrustScore: 0.2, ReportsMade: 10},
	}
	accept, prob, err := Decide(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accept {
		t.Errorf("expected rejection for low-trust user")
	}
	if prob != 0 {
		t.Errorf("expected prob 0 for instant-reject, got %v", prob)
	}
}

func TestDecideIsPure(t *testing.T) {
	in := trustedInput(2.0, 10.0)
	a1, p1, err1 := Decide(in)
	a2, p2, err2 := Decide(in)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected error: %v / %v", err1, err2)
	}
	if a1 != a2 || p1 != p2 {
		t.Errorf("Decide is not pure: (%v,%v) != (%v,%v)", a1, p1, a2, p2)
	}
}

func TestAdjustedTrustSkipsPriorBelowLowThreshold(t *testing.T) {
	u := UserStats{TrustScore: 0.4, ReportsMade: 100}
	got := adjustedTrust(u)
	if got != u.TrustScore {
		t.Errorf("expected raw trust score %v for low-trust user, got %v", u.TrustScore, got)
	}
}

func TestAdjustedTrustBlendsPriorAboveLowThreshold(t *testing.T) {
	u := UserStats{TrustScore: 1.0, ReportsMade: 0}
	got := adjustedTrust(u)
	if got != Prior {
		t.Errorf("expected pure prior %v for a user with no history, got %v", Prior, got)
	}
}

func TestNoDelayTreatedAsZeroTimeDiff(t *testing.T) {
	in := Input{
		ReporterLocation: geo.Point{Lat: 0, Lon: 0},
		TargetLocation:   geo.Point{Lat: 0, Lon: 0},
		DelayMinutes:     nil,
		User:             UserStats{TrustScore: 0.95, ReportsMade: 50},
	}
	accept, _, err := Decide(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accept {
		t.Errorf("expected acceptance for a trusted user with no delay reported")
	}
}

func TestDecideRejectsOutOfRangeReporterLatitude(t *testing.T) {
	in := trustedInput(1.0, 5.0)
	in.ReporterLocation.Lat = 95
	_, _, err := Decide(in)
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestDecideRejectsOutOfRangeTargetLongitude(t *testing.T) {
	in := trustedInput(1.0, 5.0)
	in.TargetLocation.Lon = -200
	_, _, err := Decide(in)
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}
