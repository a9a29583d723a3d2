package geo

import "testing"

func TestHaversineSymmetry(t *testing.T) {
	cases := []struct {
		a, b Point
	}{
		{Point{40.7128, -74.0060}, Point{34.0522, -118.2437}},
		{Point{51.5074, -0.1278}, Point{48.8566, 2.3522}},
		{Point{0, 0}, Point{0, 0}},
		{Point{-33.8688, 151.2093}, Point{35.6762, 139.6503}},
	}

	for _, c := range cases {
		ab := HaversineKm(c.a, c.b)
		ba := HaversineKm(c.b, c.a)
		diff := ab - ba
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-9 {
			t.Errorf("HaversineKm(%v,%v)=%f but HaversineKm(%v,%v)=%f, diff %g exceeds 1e-9", c.a, c.b, ab, c.b, c.a, ba, diff)
		}
	}
}

func TestHaversineZeroDistance(t *testing.T) {
	p := Point{40.0, -73.0}
	if d := HaversineKm(p, p); d != 0 {
		t.Errorf("expected 0 distance for identical points, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// New York to Los Angeles is approximately 3936 km.
	nyc := Point{40.7128, -74.0060}
	la := Point{34.0522, -118.2437}
	d := HaversineKm(nyc, la)
	if d < 3900 || d > 3970 {
		t.Errorf("expected NYC-LA distance near 3936km, got %f", d)
	}
}
