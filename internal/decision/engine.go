// Package decision implements the pure function mapping a recognition
// outcome to a gate action, grounded on original_source's
// gate-node/core/gate_control.py DecisionEngine.
package decision

import "github.com/gatenet/edge-node/internal/models"

// Thresholds holds the confidence gates applied per status.
type Thresholds struct {
	AuthThreshold    float32
	WantedThreshold  float32
}

// DefaultThresholds matches SPEC_FULL.md §4.8's recommended defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{AuthThreshold: 0.5, WantedThreshold: 0.5}
}

// Outcome is the decision engine's result.
type Outcome struct {
	Status   models.PersonStatus
	Decision models.GateDecision
	Alert    bool
}

// Decide is a pure function of match outcome, stored status, and
// confidence. matchFound=false always yields UNKNOWN regardless of status.
func Decide(matchFound bool, status models.PersonStatus, confidence float32, th Thresholds) Outcome {
	if !matchFound {
		return Outcome{Status: models.StatusUnknown, Decision: models.DecisionClose, Alert: true}
	}

	switch status {
	case models.StatusAuthorized:
		if confidence >= th.AuthThreshold {
			return Outcome{Status: models.StatusAuthorized, Decision: models.DecisionOpen, Alert: false}
		}
		return Outcome{Status: models.StatusUnknown, Decision: models.DecisionClose, Alert: true}

	case models.StatusWanted:
		if confidence >= th.WantedThreshold {
			// WANTED still opens the gate to permit capture of the
			// individual, per SPEC_FULL.md §4.8.
			return Outcome{Status: models.StatusWanted, Decision: models.DecisionOpen, Alert: true}
		}
		return Outcome{Status: models.StatusUnknown, Decision: models.DecisionClose, Alert: true}

	default:
		return Outcome{Status: models.StatusUnknown, Decision: models.DecisionClose, Alert: true}
	}
}
