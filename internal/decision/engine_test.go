package decision

import (
	"testing"

	"github.com/gatenet/edge-node/internal/models"
)

func TestDecideTable(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name       string
		match      bool
		status     models.PersonStatus
		confidence float32
		wantStatus models.PersonStatus
		wantDec    models.GateDecision
	}{
		{"no match", false, models.StatusAuthorized, 0.9, models.StatusUnknown, models.DecisionClose},
		{"authorized above threshold", true, models.StatusAuthorized, 0.8, models.StatusAuthorized, models.DecisionOpen},
		{"authorized below threshold", true, models.StatusAuthorized, 0.2, models.StatusUnknown, models.DecisionClose},
		{"wanted above threshold", true, models.StatusWanted, 0.75, models.StatusWanted, models.DecisionOpen},
		{"wanted below threshold", true, models.StatusWanted, 0.2, models.StatusUnknown, models.DecisionClose},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := Decide(c.match, c.status, c.confidence, th)
			if out.Status != c.wantStatus || out.Decision != c.wantDec {
				t.Fatalf("got (%v,%v), want (%v,%v)", out.Status, out.Decision, c.wantStatus, c.wantDec)
			}
		})
	}
}
