package fare

import (
	"math"
	"testing"

	"caballus/internal/domain"
)

func TestFare_FloorsAtMinimum(t *testing.T) {
	if got := Fare(10, 0.001, 500); got != 10 {
		t.Errorf("expected minFare floor of 10, got %v", got)
	}
	if got := Fare(10, 0.01, 2000); got != 20 {
		t.Errorf("expected 20, got %v", got)
	}
}

func TestDriverFare_HappyPath(t *testing.T) {
	driver := domain.Coordinates{Lat: 0, Lng: 0}
	origin := domain.Coordinates{Lat: 0, Lng: 0}
	got := DriverFare(10, 0.001, driver, origin, 1100)
	want := 10.0 // max(10, 0.001*(0+1100)) = max(10, 1.1): the floor dominates.
	if math.Abs(got-want) > 0.01 {
		t.Errorf("expected ~%v, got %v", want, got)
	}

	got2 := DriverFare(10, 0.01, driver, origin, 1100)
	want2 := 11.0 // max(10, 0.01*1100) = max(10, 11) = 11: now the rate dominates.
	if math.Abs(got2-want2) > 0.01 {
		t.Errorf("expected ~%v, got %v", want2, got2)
	}
}

func TestQuoteCeiling_Empty(t *testing.T) {
	_, ok := QuoteCeiling(nil)
	if ok {
		t.Error("expected absent quote for empty candidate set")
	}
}

func TestQuoteCeiling_OddAndEven(t *testing.T) {
	odd, ok := QuoteCeiling([]float64{30, 10, 20})
	if !ok || odd != 20 {
		t.Errorf("expected median 20, got %v (ok=%v)", odd, ok)
	}

	even, ok := QuoteCeiling([]float64{10, 20, 30, 40})
	if !ok || even != 20 {
		t.Errorf("expected lower-middle 20 for even set, got %v (ok=%v)", even, ok)
	}
}
