package dispatch

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		minutes int
		wantErr bool
	}{
		{input: "08:00", want: "08:00", minutes: 480},
		{input: "08:00:30", want: "08:00", minutes: 480},
		{input: "00:00", want: "00:00", minutes: 0},
		{input: "23:59", want: "23:59", minutes: 1439},
		{input: "7:05", want: "07:05", minutes: 425},
		{input: "24:00", wantErr: true},
		{input: "08:60", wantErr: true},
		{input: "08:00:61", wantErr: true},
		{input: "eight", wantErr: true},
		{input: "", wantErr: true},
		{input: "08", wantErr: true},
		{input: "-1:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tod, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tod.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tod)
			}
			if tod.MinuteOfDay() != tt.minutes {
				t.Errorf("expected %d minutes, got %d", tt.minutes, tod.MinuteOfDay())
			}
		})
	}
}

func TestTimeOfDayFrom(t *testing.T) {
	ts := time.Date(2026, 3, 2, 8, 2, 45, 0, time.UTC)
	tod := TimeOfDayFrom(ts)
	if tod.String() != "08:02" {
		t.Errorf("expected 08:02, got %s", tod)
	}
}

func TestMinutesSince(t *testing.T) {
	start, _ := ParseTimeOfDay("08:00")

	tests := []struct {
		now  string
		want int
	}{
		{"08:00", 0},
		{"08:04", 4},
		{"08:06", 6},
		{"07:59", -1},
		// No date rollover: a run just after midnight against a
		// late-evening trigger goes negative instead of wrapping.
		{"00:05", -475},
	}

	for _, tt := range tests {
		now, _ := ParseTimeOfDay(tt.now)
		if got := now.MinutesSince(start); got != tt.want {
			t.Errorf("%s - 08:00: expected %d, got %d", tt.now, tt.want, got)
		}
	}
}
