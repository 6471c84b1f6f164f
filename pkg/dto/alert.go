package dto

// AlertEvent is broadcast over the admin websocket stream whenever the
// alert set changes.
type AlertEvent struct {
	TrackID    int64   `json:"track_id"`
	Status     string  `json:"status"`
	Name       string  `json:"name,omitempty"`
	Confidence float32 `json:"confidence"`
	Kind       string  `json:"kind"` // "shown" | "expired"
}
