package orders

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusPaid, StatusFailed, false},
		{StatusPaid, StatusPending, false},
		{StatusFailed, StatusPaid, false},
		{StatusFailed, StatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !StatusPaid.Terminal() {
		t.Error("paid must be terminal")
	}
	if !StatusFailed.Terminal() {
		t.Error("failed must be terminal")
	}
}
