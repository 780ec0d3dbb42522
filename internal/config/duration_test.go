package config

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 30s ", want: 30 * time.Second},
		{raw: "10", want: 10 * time.Second},
		{raw: "0.5", want: 500 * time.Millisecond},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDuration("x", tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseDuration(%q) = %v, %v", tc.raw, got, err)
		}
	}

	if d, _ := DurationOr("x", "", time.Minute); d != time.Minute {
		t.Fatalf("default not used: %v", d)
	}
	if d, _ := DurationOr("x", "0s", time.Minute); d != time.Minute {
		t.Fatalf("zero not defaulted: %v", d)
	}
	if _, err := DurationOr("x", "nope", time.Minute); err == nil {
		t.Fatal("error swallowed")
	}
}
