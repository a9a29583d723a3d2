// Package decider implements the acceptance test applied to every incoming
// report before it can affect an incident or a user's reputation. It is a
// pure function of a report message and the reporting user's current trust
// statistics.
package decider

import (
	"errors"
	"fmt"
	"math"

	"github.com/transitwatch/transitwatch/internal/geo"
)

// ErrInvalidCoordinates means a reporter's or target location's latitude or
// longitude fell outside the valid range. Callers should treat this as an
// invalid-input report, not a rejection verdict.
var ErrInvalidCoordinates = errors.New("decider: coordinates out of range")

const (
	// DistMaxKm is the maximum plausible distance between a reporter and the
	// location they are reporting on.
	DistMaxKm = 10.0
	// TimeMaxMinutes is the maximum plausible reported delay.
	TimeMaxMinutes = 360.0
	// TrustMin is the minimum adjusted trust score required to accept a
	// report outright.
	TrustMin = 0.7
	// DecideMin is the minimum acceptance probability for the sigmoid gate.
	DecideMin = 0.5
	// Prior is the assumed trust score for a user with no report history.
	Prior = 0.9
	// PriorWeight is the pseudo-count given to the prior in the
	// Bayesian-style blend with the user's observed trust score.
	PriorWeight = 1.0
	// LowThreshold marks a user's trust score as already "known bad"; at or
	// below this the prior blend is skipped and the raw score is used directly.
	LowThreshold = 0.5
)

// UserStats is the subset of user state the Decider needs.
type UserStats struct {
	TrustScore  float64
	ReportsMade int
}

// Thresholds holds the Decider's tunable acceptance gates. The zero value is
// not usable directly; DefaultThresholds returns the spec-mandated values,
// and Decide falls back to them when an Input carries a zero Thresholds.
type Thresholds struct {
	DistMaxKm      float64
	TimeMaxMinutes float64
	TrustMin       float64
	DecideMin      float64
}

// DefaultThresholds returns the constants the original decider used.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DistMaxKm:      DistMaxKm,
		TimeMaxMinutes: TimeMaxMinutes,
		TrustMin:       TrustMin,
		DecideMin:      DecideMin,
	}
}

// Input bundles the values extracted from a report needed to decide it.
type Input struct {
	ReporterLocation geo.Point
	TargetLocation   geo.Point
	DelayMinutes     *float64
	User             UserStats
	// Thresholds overrides the acceptance gates for this call. Leave it
	// zero to use DefaultThresholds (the original constants).
	Thresholds Thresholds
}

// Decide evaluates a report and returns whether it should be accepted and
// the acceptance probability that drove the decision. A rejected-by-instant-
// reject report always reports probability 0. Returns ErrInvalidCoordinates
// if either location is out of range, before any acceptance logic runs.
func Decide(in Input) (accept bool, prob float64, err error) {
	if err := validateCoordinates(in.ReporterLocation); err != nil {
		return false, 0, err
	}
	if err := validateCoordinates(in.TargetLocation); err != nil {
		return false, 0, err
	}

	th := in.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}

	distance := geo.HaversineKm(in.ReporterLocation, in.TargetLocation)

	timeDiff := 0.0
	if in.DelayMinutes != nil {
		timeDiff = *in.DelayMinutes
	}

	trust := adjustedTrust(in.User)

	if instantReject(distance, timeDiff, trust, th) {
		return false, 0, nil
	}

	s := 2*trust - distance/th.DistMaxKm - timeDiff/th.TimeMaxMinutes
	p := sigmoid(s)
	return p >= th.DecideMin, p, nil
}

// validateCoordinates rejects a point outside the valid latitude/longitude
// range (±90 / ±180), per the report input contract.
func validateCoordinates(p geo.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, p.Lat, p.Lon)
	}
	return nil
}

// adjustedTrust blends the user's observed trust score with a prior, unless
// the user is already at or below LowThreshold, in which case the raw score is
// used directly (a low-trust user should not be rescued by the prior).
func adjustedTrust(u UserStats) float64 {
	if u.TrustScore <= LowThreshold {
		return u.TrustScore
	}
	n := float64(u.ReportsMade)
	return (PriorWeight*Prior + n*u.TrustScore) / (PriorWeight + n)
}

func instantReject(distance, timeDiff, trust float64, th Thresholds) bool {
	return distance > th.DistMaxKm || timeDiff > th.TimeMaxMinutes || trust < th.TrustMin
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
