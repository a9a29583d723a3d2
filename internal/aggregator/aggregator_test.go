package aggregator

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/internal/errkind"
	"github.com/transitwatch/transitwatch/internal/geo"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/store"
)

func newTestSetup(t *testing.T) (*store.Store, *Aggregator) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.SeedReportTypes([]string{"Delay", "Maintenance", "Accident", "Solved", "Other"}); err != nil {
		t.Fatalf("seed report types: %v", err)
	}

	agg, err := New(s)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return s, agg
}

func mustCreateUser(t *testing.T, s *store.Store, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(username, username+"@example.com")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func delayPtr(v float64) *float64 { return &v }

func TestRoutineOpensNewIncidentWhenNoneActive(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 40.0, Lon: -73.0},
		LocationName: "trip1@stopA",
		LocationPos:  geo.Point{Lat: 40.0, Lon: -73.0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(5),
	}

	inc, err := agg.Routine(msg, u.ID)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}
	if inc.Status != store.StatusActive {
		t.Errorf("expected new incident to be active, got %s", inc.Status)
	}
}

// P1: reports_made increments by exactly one per accepted report processed
// through the Aggregator.
func TestReportsMadeIncrementsByOne(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(5),
	}

	if _, err := agg.Routine(msg, u.ID); err != nil {
		t.Fatalf("routine: %v", err)
	}

	got, err := s.GetUser(u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ReportsMade != 1 {
		t.Errorf("expected reports_made 1, got %d", got.ReportsMade)
	}
}

// P2: at most one active incident per location, even across multiple
// reports at the same location.
func TestAtMostOneActiveIncidentPerLocation(t *testing.T) {
	s, agg := newTestSetup(t)
	alice := mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")

	base := report.Message{
		LocationName: "trip1@stopA",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(5),
	}

	m1 := base
	m1.UserName = "alice"
	if _, err := agg.Routine(m1, alice.ID); err != nil {
		t.Fatalf("routine 1: %v", err)
	}

	m2 := base
	m2.UserName = "bob"
	m2.DelayMinutes = delayPtr(7)
	if _, err := agg.Routine(m2, bob.ID); err != nil {
		t.Fatalf("routine 2: %v", err)
	}

	locID, err := s.GetLocationIDByName("trip1@stopA")
	if err != nil {
		t.Fatalf("get location: %v", err)
	}
	incidents, err := s.ListIncidents(store.IncidentFilter{LocationID: locID, Status: store.StatusActive})
	if err != nil {
		t.Fatalf("list incidents: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected exactly 1 active incident at the location, got %d", len(incidents))
	}
}

// P3: trust scores always stay within [0,1] after recompute.
func TestIncidentTrustScoreStaysInUnitInterval(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeAccident,
		DelayMinutes: delayPtr(5),
	}

	inc, err := agg.Routine(msg, u.ID)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}
	if inc.TrustScore < 0 || inc.TrustScore > 1 {
		t.Errorf("incident trust score %v out of [0,1]", inc.TrustScore)
	}
}

// P6: recompute is idempotent over a fixed report set — calling it twice
// back to back (no new reports in between) produces the same derived
// fields, modulo last_updated which only advances with wall-clock time.
func TestRecomputeIdempotentOverFixedReportSet(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(10),
	}

	inc, err := agg.Routine(msg, u.ID)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}

	if err := agg.recompute(inc.ID); err != nil {
		t.Fatalf("recompute again: %v", err)
	}

	got, err := s.GetIncident(inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if got.TypeID != inc.TypeID {
		t.Errorf("type changed across idempotent recompute: %v != %v", got.TypeID, inc.TypeID)
	}
	if got.TrustScore != inc.TrustScore {
		t.Errorf("trust score changed across idempotent recompute: %v != %v", got.TrustScore, inc.TrustScore)
	}
}

// P7: a Solved report resolves an incident; a later report at the same
// location opens a brand-new incident rather than reviving the old one.
func TestResolutionIsMonotonic(t *testing.T) {
	s, agg := newTestSetup(t)
	alice := mustCreateUser(t, s, "alice")

	delayMsg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(5),
	}
	first, err := agg.Routine(delayMsg, alice.ID)
	if err != nil {
		t.Fatalf("routine 1: %v", err)
	}

	solvedMsg := delayMsg
	solvedMsg.ReportType = report.TypeSolved
	solvedMsg.DelayMinutes = nil
	resolved, err := agg.Routine(solvedMsg, alice.ID)
	if err != nil {
		t.Fatalf("routine 2: %v", err)
	}
	if resolved.ID != first.ID {
		t.Fatalf("expected solved report to update the same incident")
	}
	if resolved.Status != store.StatusResolved {
		t.Fatalf("expected incident to resolve, got status %s", resolved.Status)
	}

	laterMsg := delayMsg
	laterMsg.DelayMinutes = delayPtr(3)
	second, err := agg.Routine(laterMsg, alice.ID)
	if err != nil {
		t.Fatalf("routine 3: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new incident to open, got the resolved one reused")
	}
	if second.Status != store.StatusActive {
		t.Fatalf("expected new incident to be active, got %s", second.Status)
	}
}

// S5 (error-kind split): a genuinely unseeded report type is UnknownType
// (fatal, schema drift), but a transient store failure on the same lookup
// must surface as StoreError (log-and-drop), not kill the consumer.
func TestRoutineReportsUnknownTypeForUnseededType(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.Type("NotARealType"),
	}

	_, err := agg.Routine(msg, u.ID)
	if !errors.Is(err, errkind.UnknownType) {
		t.Fatalf("expected errkind.UnknownType, got %v", err)
	}
}

func TestRoutineReportsStoreErrorWhenTypeLookupFails(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")
	s.Close()

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
	}

	_, err := agg.Routine(msg, u.ID)
	if errors.Is(err, errkind.UnknownType) {
		t.Fatalf("expected errkind.StoreError for a closed store, got UnknownType: %v", err)
	}
	if !errors.Is(err, errkind.StoreError) {
		t.Fatalf("expected errkind.StoreError, got %v", err)
	}
}

func TestSweepStaleResolvesIncidentsPastGrace(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeDelay,
		DelayMinutes: delayPtr(1),
	}
	inc, err := agg.Routine(msg, u.ID)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}

	// Force last_updated far enough in the past that avg_delay + grace has
	// elapsed. Monotonicity only forbids moving backward through the public
	// UpdateLastUpdated path, so we go around it directly for the fixture.
	past := time.Now().UTC().Add(-1 * time.Hour)
	_, execErr := s.DB().Exec(`UPDATE incidents SET last_updated = ? WHERE id = ?`, past, inc.ID)
	if execErr != nil {
		t.Fatalf("force last_updated: %v", execErr)
	}

	n, err := agg.SweepStale()
	if err != nil {
		t.Fatalf("sweep stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 incident transitioned, got %d", n)
	}

	got, err := s.GetIncident(inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Errorf("expected incident to be resolved after sweep, got %s", got.Status)
	}
}

func TestSweepStaleIgnoresIncidentsWithoutDelay(t *testing.T) {
	s, agg := newTestSetup(t)
	u := mustCreateUser(t, s, "alice")

	msg := report.Message{
		UserName:     "alice",
		UserLocation: geo.Point{Lat: 0, Lon: 0},
		LocationName: "loc1",
		LocationPos:  geo.Point{Lat: 0, Lon: 0},
		ReportType:   report.TypeAccident,
		DelayMinutes: nil,
	}
	inc, err := agg.Routine(msg, u.ID)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}

	past := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := s.DB().Exec(`UPDATE incidents SET last_updated = ? WHERE id = ?`, past, inc.ID); err != nil {
		t.Fatalf("force last_updated: %v", err)
	}

	n, err := agg.SweepStale()
	if err != nil {
		t.Fatalf("sweep stale: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 incidents transitioned for a delay-less incident, got %d", n)
	}
}

func TestDominantTypePrefersSolvedRegardlessOfCount(t *testing.T) {
	reports := []store.Report{
		{TypeID: 1}, {TypeID: 1}, {TypeID: 1}, {TypeID: 4},
	}
	got := dominantReportType(reports, 4)
	if got != 4 {
		t.Errorf("expected Solved (id 4) to win outright, got %d", got)
	}
}

func TestDominantTypeBreaksTiesByRecency(t *testing.T) {
	// reports is ordered created_at DESC (most recent first): type 2 is the
	// most recent entry of a tied pair with type 1.
	reports := []store.Report{
		{TypeID: 2}, {TypeID: 1}, {TypeID: 2}, {TypeID: 1},
	}
	got := dominantReportType(reports, 99)
	if got != 2 {
		t.Errorf("expected most recent tied type (2) to win, got %d", got)
	}
}
