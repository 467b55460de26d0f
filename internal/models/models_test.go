package models

import (
	"strings"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func seriesOf(dates []string, closes []float64) *PriceSeries {
	s := &PriceSeries{Instrument: "IE00B4L5Y983", Period: Period1Y}
	for i, d := range dates {
		s.Points = append(s.Points, PricePoint{Date: day(d), Close: closes[i]})
	}
	return s
}

func TestIsISIN(t *testing.T) {
	tests := []struct {
		id   InstrumentID
		want bool
	}{
		{"IE00B4L5Y983", true},
		{"US0378331005", true},
		{"VWCE.DE", false},
		{"ie00b4l5y983", false},
		{"IE00B4L5Y98X", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.id.IsISIN(); got != tt.want {
			t.Errorf("%q.IsISIN() = %v, want %v", tt.id, got, tt.want)
		}
	}
	if got := InstrumentID(" ie00b4l5y983 ").Normalize(); got != "IE00B4L5Y983" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	now := day("2024-06-30")
	tests := []struct {
		name    string
		series  *PriceSeries
		wantErr string
	}{
		{"valid", seriesOf([]string{"2024-06-03", "2024-06-04", "2024-06-05"}, []float64{1, 2, 3}), ""},
		{"empty", &PriceSeries{}, "empty"},
		{"duplicate", seriesOf([]string{"2024-06-03", "2024-06-03"}, []float64{1, 2}), "does not follow"},
		{"unordered", seriesOf([]string{"2024-06-04", "2024-06-03"}, []float64{1, 2}), "does not follow"},
		{"negative", seriesOf([]string{"2024-06-03", "2024-06-04"}, []float64{1, -2}), "negative"},
		{"future", seriesOf([]string{"2024-06-03", "2024-07-04"}, []float64{1, 2}), "future"},
		{"gap", seriesOf([]string{"2024-05-01", "2024-06-04"}, []float64{1, 2}), "gap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate(now, 10*24*time.Hour)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPeriods(t *testing.T) {
	now := day("2024-06-30")
	if got := Period1Y.Start(now); !got.Equal(day("2023-06-30")) {
		t.Errorf("1y start = %s", got)
	}
	if got := PeriodYTD.Start(now); !got.Equal(day("2024-01-01")) {
		t.Errorf("ytd start = %s", got)
	}
	if _, err := ParsePeriod("3MO"); err != nil {
		t.Errorf("ParsePeriod(3MO): %v", err)
	}
	if _, err := ParsePeriod("7d"); err == nil {
		t.Error("ParsePeriod(7d) should fail")
	}
}

func TestIndexLookups(t *testing.T) {
	s := seriesOf([]string{"2024-06-03", "2024-06-04", "2024-06-07"}, []float64{1, 2, 3})
	if got := s.OnOrAfter(day("2024-06-05")); got != 2 {
		t.Errorf("OnOrAfter = %d", got)
	}
	if got := s.Since(day("2024-06-04")).Len(); got != 2 {
		t.Errorf("Since len = %d", got)
	}
}
