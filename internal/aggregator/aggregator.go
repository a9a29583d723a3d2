// Package aggregator owns the incident state machine: resolving a report's
// ids, linking it to an incident (opening a new one if needed), and
// recomputing that incident's derived fields over every report currently
// linked to it.
package aggregator

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/transitwatch/transitwatch/internal/errkind"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/store"
)

// StaleGrace is added on top of an incident's own avg_delay when deciding
// whether it has gone stale.
const StaleGrace = 5 * time.Minute

// Aggregator is the stateful core of the pipeline. Routine is invoked from
// the one consumer goroutine (internal/pipeline). SweepStale is also invoked
// from the staleness-sweep scheduler job (cmd/transitwatch/cmd/serve.go) and
// before each /api/incidents read (internal/httpapi).
type Aggregator struct {
	store        *store.Store
	solvedTypeID int64
}

// New constructs an Aggregator. Resolves and caches the id of the "Solved"
// report type, since it drives incident resolution and is looked up on
// every recompute.
func New(s *store.Store) (*Aggregator, error) {
	solvedID, err := s.GetTypeIDByName(string(report.TypeSolved))
	if err != nil {
		return nil, fmt.Errorf("aggregator: resolve Solved type id: %w", err)
	}
	return &Aggregator{store: s, solvedTypeID: solvedID}, nil
}

// Routine processes one accepted report message: resolves ids, inserts the
// report row, links it to an incident (opening a new one if the location
// has none active), and recomputes that incident atomically. Returns the
// incident the report ended up linked to.
func (a *Aggregator) Routine(msg report.Message, userID int64) (*store.Incident, error) {
	// Step A: resolve type and location ids.
	typeID, err := a.store.GetTypeIDByName(string(msg.ReportType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: report type %q: %v", errkind.UnknownType, msg.ReportType, err)
	} else if err != nil {
		return nil, fmt.Errorf("%w: lookup report type: %v", errkind.StoreError, err)
	}

	locationID, err := a.store.GetLocationIDByName(msg.LocationName)
	if errors.Is(err, sql.ErrNoRows) {
		loc, addErr := a.store.AddLocation(msg.LocationName, msg.LocationPos.Lat, msg.LocationPos.Lon)
		if addErr != nil {
			return nil, fmt.Errorf("%w: add location: %v", errkind.StoreError, addErr)
		}
		locationID = loc.ID
	} else if err != nil {
		return nil, fmt.Errorf("%w: lookup location: %v", errkind.StoreError, err)
	}

	// Step B: insert the report and bump the reporter's report count.
	reportID, err := a.store.InsertReport(userID, locationID, typeID, msg.DelayMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: insert report: %v", errkind.StoreError, err)
	}
	if _, err := a.store.IncrementReportsMade(userID); err != nil {
		return nil, fmt.Errorf("%w: increment reports_made: %v", errkind.StoreError, err)
	}

	// Step C: find the unique active incident at this location, if any.
	active, err := a.store.GetActiveIncidentByLocation(locationID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup active incident: %v", errkind.StoreError, err)
	}

	var incidentID int64
	if active == nil {
		// Step D.1: no active incident — open one, seeded with the raw
		// delay; Step E immediately recomputes it over the linked reports.
		incidentID, err = a.store.CreateIncident(locationID, typeID, msg.DelayMinutes, 0, store.StatusActive)
		if err != nil {
			return nil, fmt.Errorf("%w: create incident: %v", errkind.StoreError, err)
		}
	} else {
		// Step D.2: link to the existing active incident.
		incidentID = active.ID
	}

	if err := a.store.LinkReportToIncident(reportID, incidentID); err != nil {
		return nil, fmt.Errorf("%w: link report to incident: %v", errkind.StoreError, err)
	}

	// Step E: recompute the incident's derived fields over every linked
	// report, in one transaction.
	if err := a.recompute(incidentID); err != nil {
		return nil, fmt.Errorf("%w: recompute incident %d: %v", errkind.StoreError, incidentID, err)
	}

	return a.store.GetIncident(incidentID)
}

// recompute rewrites an incident's type, avg_delay, trust_score, and
// last_updated from scratch, over every report currently linked to it. Pure
// over the linked report set: calling it twice in a row with no new reports
// produces the same result (property P6).
func (a *Aggregator) recompute(incidentID int64) error {
	return a.store.WithTx(func(tx *store.Tx) error {
		reports, err := tx.GetReportsForIncident(incidentID)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return fmt.Errorf("recompute: incident %d has no linked reports", incidentID)
		}

		now := time.Now().UTC()

		type weighted struct {
			typeID int64
			weight float64
		}

		var remainders []float64
		var sum float64
		for _, r := range reports {
			if r.DelayMinutes == nil {
				continue
			}
			adjusted := r.CreatedAt.Add(-time.Duration(*r.DelayMinutes * float64(time.Minute)))
			remaining := math.Abs(adjusted.Sub(now).Minutes())
			remainders = append(remainders, remaining)
			sum += remaining
		}

		var avgDelay *float64
		if len(remainders) > 0 {
			v := sum / float64(len(remainders))
			avgDelay = &v
		}

		weights := make([]weighted, 0, len(reports))
		remainderIdx := 0
		for _, r := range reports {
			user, err := tx.GetUser(r.UserID)
			if err != nil {
				return err
			}
			w := user.TrustScore * (1 + float64(user.ReportsMade)/100.0)

			if r.DelayMinutes != nil {
				d := remainders[remainderIdx]
				remainderIdx++
				if avgDelay != nil && *avgDelay > 0 {
					diff := math.Abs(d - *avgDelay)
					attenuation := math.Max(0.5, 1-diff/(*avgDelay))
					w *= attenuation
				}
			}
			weights = append(weights, weighted{typeID: r.TypeID, weight: w})
		}

		maxWeight := 1.0
		if len(weights) > 0 {
			maxWeight = weights[0].weight
			for _, w := range weights[1:] {
				if w.weight > maxWeight {
					maxWeight = w.weight
				}
			}
			if maxWeight == 0 {
				maxWeight = 1
			}
		}

		var weightSum float64
		for _, w := range weights {
			weightSum += w.weight
		}
		trustScore := clamp((weightSum/maxWeight)/float64(len(reports)), 0, 1)

		dominantType := dominantReportType(reports, a.solvedTypeID)

		if err := tx.UpdateIncidentType(incidentID, dominantType); err != nil {
			return err
		}
		if err := tx.UpdateAvgDelay(incidentID, avgDelay); err != nil {
			return err
		}
		if err := tx.UpdateTrustScore(incidentID, trustScore); err != nil {
			return err
		}
		if err := tx.UpdateLastUpdated(incidentID, now); err != nil {
			return err
		}

		if dominantType == a.solvedTypeID {
			if err := tx.UpdateStatus(incidentID, store.StatusResolved); err != nil {
				return err
			}
		}

		return nil
	})
}

// dominantReportType picks the incident's type from its linked reports.
// Solved wins outright if present at all. Otherwise the type with the
// highest count wins; ties are broken by recency, using that reports is
// ordered created_at descending (most recent first).
func dominantReportType(reports []store.Report, solvedTypeID int64) int64 {
	counts := make(map[int64]int, len(reports))
	for _, r := range reports {
		counts[r.TypeID]++
		if r.TypeID == solvedTypeID {
			return solvedTypeID
		}
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	for _, r := range reports {
		if counts[r.TypeID] == maxCount {
			return r.TypeID
		}
	}
	return reports[0].TypeID
}

// SweepStale transitions active incidents to resolved once they've gone
// stale: now > last_updated + avg_delay + grace. Incidents with no
// delay-bearing reports (avg_delay == nil) never go stale by this rule.
// Safe to call repeatedly and concurrently with ordinary report processing
// so long as the caller holds the same single-writer discipline (see
// internal/scheduler for the file-lock-guarded periodic invocation).
func (a *Aggregator) SweepStale() (int, error) {
	active, err := a.store.ListActiveIncidents()
	if err != nil {
		return 0, fmt.Errorf("%w: list active incidents: %v", errkind.StoreError, err)
	}

	now := time.Now().UTC()
	transitioned := 0
	for _, inc := range active {
		if inc.AvgDelay == nil {
			continue
		}
		threshold := inc.LastUpdated.Add(time.Duration(*inc.AvgDelay * float64(time.Minute))).Add(StaleGrace)
		if !now.After(threshold) {
			continue
		}
		err := a.store.WithTx(func(tx *store.Tx) error {
			return tx.UpdateStatus(inc.ID, store.StatusResolved)
		})
		if err != nil {
			return transitioned, fmt.Errorf("%w: resolve stale incident %d: %v", errkind.StoreError, inc.ID, err)
		}
		transitioned++
	}
	return transitioned, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
