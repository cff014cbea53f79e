package timeutil

import (
	"math"
	"testing"
)

func TestParseTimecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "hours", input: "01:02:03", want: 3723},
		{name: "minutes", input: "02:15", want: 135},
		{name: "seconds only", input: "42", want: 42},
		{name: "fractional seconds", input: "00:30.5", want: 30.5},
		{name: "fractional with hours", input: "0:01:05.25", want: 65.25},
		{name: "padded", input: "  1:30  ", want: 90},
		{name: "garbage", input: "abc", wantErr: true},
		{name: "too many parts", input: "1:2:3:4", wantErr: true},
		{name: "bad minutes", input: "xx:30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimecode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimecode(%q) returned error: %v", tt.input, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ParseTimecode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{59.9, "00:00:59"},
		{65, "00:01:05"},
		{3723, "01:02:03"},
		{-5, "00:00:00"},
	}

	for _, tt := range tests {
		if got := FormatTimecode(tt.seconds); got != tt.want {
			t.Errorf("FormatTimecode(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 30, 90, 3600, 7265} {
		parsed, err := ParseTimecode(FormatTimecode(seconds))
		if err != nil {
			t.Fatalf("round trip %v: %v", seconds, err)
		}
		if parsed != seconds {
			t.Fatalf("round trip %v: got %v", seconds, parsed)
		}
	}
}

func TestIntervals(t *testing.T) {
	t.Run("truncated tail", func(t *testing.T) {
		got := Intervals(65, 30)
		want := []Interval{{0, 30}, {30, 60}, {60, 65}}
		if len(got) != len(want) {
			t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("interval %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("exact multiple", func(t *testing.T) {
		got := Intervals(60, 30)
		if len(got) != 2 || got[1].End != 60 {
			t.Fatalf("unexpected intervals: %v", got)
		}
	})

	t.Run("gap free", func(t *testing.T) {
		got := Intervals(100, 7)
		if got[0].Start != 0 {
			t.Fatalf("first interval starts at %v", got[0].Start)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Start != got[i-1].End {
				t.Fatalf("gap between interval %d and %d: %v %v", i-1, i, got[i-1], got[i])
			}
		}
		if got[len(got)-1].End != 100 {
			t.Fatalf("last interval ends at %v", got[len(got)-1].End)
		}
	})

	t.Run("degenerate", func(t *testing.T) {
		if got := Intervals(0, 30); got != nil {
			t.Fatalf("expected nil for zero duration, got %v", got)
		}
		if got := Intervals(30, 0); got != nil {
			t.Fatalf("expected nil for zero step, got %v", got)
		}
	})
}
