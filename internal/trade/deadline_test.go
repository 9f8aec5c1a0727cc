package trade

import (
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	now := time.Unix(1_000, 0)
	cases := []struct {
		expiresAt int64
		want      int64
	}{
		{1_090, 90},
		{1_000, 0},
		{900, 0},
	}
	for _, c := range cases {
		if got := Remaining(c.expiresAt, now); got != c.want {
			t.Fatalf("Remaining(%d)=%d want %d", c.expiresAt, got, c.want)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := map[int64]string{
		0:    "00:00",
		59:   "00:59",
		90:   "01:30",
		3599: "59:59",
		3661: "1:01:01",
		-5:   "00:00",
	}
	for in, want := range cases {
		if got := FormatRemaining(in); got != want {
			t.Fatalf("FormatRemaining(%d)=%q want %q", in, got, want)
		}
	}
}
