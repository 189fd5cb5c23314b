package evm

import (
	"context"
	"testing"
	"time"
)

func TestLocalClockAdvances(t *testing.T) {
	c := NewLocalClock(10 * time.Second)
	base := time.Now()
	c.genesis = base

	cases := []struct {
		name    string
		elapsed time.Duration
		want    uint64
	}{
		{"at genesis", 0, 0},
		{"mid first block", 5 * time.Second, 0},
		{"one block", 10 * time.Second, 1},
		{"many blocks", 95 * time.Second, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.now = func() time.Time { return base.Add(tc.elapsed) }
			got, err := c.BlockNumber(context.Background())
			if err != nil {
				t.Fatalf("BlockNumber() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("BlockNumber() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLocalClockDefaultInterval(t *testing.T) {
	c := NewLocalClock(0)
	if c.interval != 12*time.Second {
		t.Fatalf("interval = %v, want 12s", c.interval)
	}
}
