package models

import "time"

// PersonStatus classifies an enrolled identity as recorded in the face
// index. UNKNOWN is never stored — it is produced only by the decision
// engine for a track with no acceptable match.
type PersonStatus string

const (
	StatusAuthorized PersonStatus = "AUTHORIZED"
	StatusWanted     PersonStatus = "WANTED"
	StatusUnknown    PersonStatus = "UNKNOWN"
)

// FaceRecord is one enrolled identity in the face index.
type FaceRecord struct {
	FaceID    string
	PersonID  string
	FullName  string
	Status    PersonStatus
	Embedding []float32
}

// Identity is the recognition result attached to a RECOGNIZED track.
type Identity struct {
	FaceID     string
	PersonID   string
	FullName   string
	Status     PersonStatus
	Confidence float32
}

// GateDecision is the output of the decision engine.
type GateDecision string

const (
	DecisionOpen  GateDecision = "OPEN"
	DecisionClose GateDecision = "CLOSE"
)

// AccessEvent is one append-only row in the access log.
type AccessEvent struct {
	EventID    string
	Timestamp  time.Time
	GateID     string
	TrackID    int64
	FaceID     string
	PersonName string
	Status     PersonStatus
	Decision   GateDecision
	Confidence float32
	FaceCrop   []byte
	Synced     bool
}

// AlertEntry is one live entry in the alert/UI state machine's alert set.
type AlertEntry struct {
	TrackID       int64
	Status        PersonStatus
	Name          string
	Confidence    float32
	Crop          []byte
	FirstShownAt  time.Time
	LastRefreshAt time.Time
}
