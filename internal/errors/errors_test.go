package errors

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAdapterErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", NotFound("yahoo", "IE00B4L5Y983", "no chart"), ErrNotFound},
		{"unavailable", Unavailable("justetf", "IE00B4L5Y983", context.DeadlineExceeded), ErrUnavailable},
		{"bad data", BadData("eodhd", "IE00B4L5Y983", "decode", nil), ErrBadData},
		{"plain error", errors.New("boom"), ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf = %v, want %v", got, tt.kind)
			}
		})
	}

	err := Unavailable("justetf", "X", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should stay reachable")
	}
}

func TestResolutionError(t *testing.T) {
	err := &ResolutionError{
		Instrument: "IE00B4L5Y983",
		Period:     "1y",
		Attempts: []*AdapterError{
			NotFound("yahoo", "IE00B4L5Y983", "no ticker"),
			BadData("justetf", "IE00B4L5Y983", "empty series", nil),
		},
	}
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatal("expected ErrAllSourcesExhausted")
	}
	msg := err.Error()
	for _, want := range []string{"yahoo", "justetf", "no ticker", "empty series"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if KindOf(nil) != nil {
		t.Error("KindOf(nil) should be nil")
	}
}
