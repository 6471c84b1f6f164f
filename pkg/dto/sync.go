// Package dto holds wire types exchanged with the remote authority.
package dto

// FaceUpsert is one record in a faces/sync response's upserts list.
type FaceUpsert struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Status    string    `json:"status"`
	Embedding []float32 `json:"embedding"`
	ImageURL  string    `json:"image_url,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// FacesSyncResponse is the body of GET /api/v1/faces/sync.
type FacesSyncResponse struct {
	Version string       `json:"version"`
	Upserts []FaceUpsert `json:"upserts"`
	Deletes []string     `json:"deletes"`
	Count   int          `json:"count"`
}

// AccessLogEntry is one row in a POST /api/v1/access-logs batch upload.
type AccessLogEntry struct {
	ID           string  `json:"id"`
	Timestamp    int64   `json:"timestamp"`
	GateID       string  `json:"gate_id"`
	TrackID      int64   `json:"track_id"`
	FaceID       string  `json:"face_id,omitempty"`
	UserID       string  `json:"user_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Status       string  `json:"status"`
	Decision     string  `json:"decision"`
	Confidence   float32 `json:"confidence"`
	FaceCropB64  string  `json:"face_crop_b64,omitempty"`
}

// AccessLogUploadRequest is the body of POST /api/v1/access-logs.
type AccessLogUploadRequest struct {
	Logs []AccessLogEntry `json:"logs"`
}
