package chart

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"chemviz/internal/models"
)

var sample = &models.SummaryReport{
	ID:               5,
	TotalCount:       3,
	Averages:         models.Averages{Flowrate: 120.5, Pressure: 5.2, Temperature: 110},
	TypeDistribution: map[string]int{"Pump": 2, "Valve": 1},
}

func TestDistributionRendersPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := Distribution(&buf, sample); err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		t.Errorf("size = %v", b)
	}
}

func TestAveragesRendersPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := Averages(&buf, sample); err != nil {
		t.Fatalf("Averages: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
}

func TestNoData(t *testing.T) {
	empty := &models.SummaryReport{TypeDistribution: map[string]int{"Pump": 0}}
	for name, render := range map[string]func(*bytes.Buffer, *models.SummaryReport) error{
		"distribution": func(b *bytes.Buffer, r *models.SummaryReport) error { return Distribution(b, r) },
		"averages":     func(b *bytes.Buffer, r *models.SummaryReport) error { return Averages(b, r) },
	} {
		if err := render(&bytes.Buffer{}, nil); !errors.Is(err, ErrNoData) {
			t.Errorf("%s(nil) = %v", name, err)
		}
		if err := render(&bytes.Buffer{}, empty); !errors.Is(err, ErrNoData) {
			t.Errorf("%s(empty) = %v", name, err)
		}
	}
}

func TestColorCycles(t *testing.T) {
	if Color(0) != Color(len(Palette)) {
		t.Error("palette should wrap around")
	}
}
