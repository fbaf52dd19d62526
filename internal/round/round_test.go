package round

import (
	"testing"
	"time"
)

func TestClassify_ZeroExpiryIsNotStarted(t *testing.T) {
	s := Classify(0, time.Now())
	if s.Phase != NotStarted {
		t.Errorf("expected NotStarted, got %s", s.Phase)
	}
}

func TestClassify_FutureExpiryIsActive(t *testing.T) {
	now := time.Now()
	s := Classify(now.Unix()+600, now)
	if s.Phase != Active {
		t.Fatalf("expected Active, got %s", s.Phase)
	}
	if s.Remaining != 600*time.Second {
		t.Errorf("expected 600s remaining, got %s", s.Remaining)
	}
}

func TestClassify_PastExpiryIsEnded(t *testing.T) {
	now := time.Now()
	s := Classify(now.Unix()-1, now)
	if s.Phase != Ended {
		t.Errorf("expected Ended, got %s", s.Phase)
	}
}

func TestClassify_ExactExpiryIsEnded(t *testing.T) {
	now := time.Now()
	s := Classify(now.Unix(), now)
	if s.Phase != Ended {
		t.Errorf("expiry == now should be Ended, got %s", s.Phase)
	}
}

func TestCanBuy_Gating(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		expiry int64
		want   bool
	}{
		{"not started", 0, true},
		{"active", now.Unix() + 600, true},
		{"ended", now.Unix() - 1, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.expiry, now).CanBuy(); got != tt.want {
				t.Errorf("CanBuy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabel_RemainingFormat(t *testing.T) {
	now := time.Now()
	label := Classify(now.Unix()+600, now).Label()
	// 10 minutes out: anything in the 0:09:59–0:10:00 band is acceptable
	// given second truncation.
	if label != "0:10:00" && label != "0:09:59" {
		t.Errorf("expected 0:10:00 or 0:09:59, got %s", label)
	}
}

func TestLabel_Phases(t *testing.T) {
	now := time.Now()
	if got := Classify(0, now).Label(); got != "Ready" {
		t.Errorf("expected Ready, got %s", got)
	}
	if got := Classify(now.Unix()-1, now).Label(); got != "Ended" {
		t.Errorf("expected Ended, got %s", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{59 * time.Second, "0:00:59"},
		{10 * time.Minute, "0:10:00"},
		{72 * time.Hour, "72:00:00"},
		{3*time.Hour + 5*time.Minute + 7*time.Second, "3:05:07"},
		{-time.Second, "0:00:00"},
	}
	for _, tt := range cases {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%s) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
