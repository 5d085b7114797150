package api

import "time"

// SubmitRequest is the JSON body for POST /images.
type SubmitRequest struct {
	FilePath string `json:"file_path"`
}

// SubmitResponse is returned by POST /images.
type SubmitResponse struct {
	Message     string `json:"message"`
	Fingerprint string `json:"file_hash"`
	Status      string `json:"status"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
}

// ImageIDResponse is returned by GET /images/get-image-id.
type ImageIDResponse struct {
	Fingerprint string `json:"file_hash"`
}

// JobResponse is returned by GET /images/{file_hash}.
type JobResponse struct {
	Fingerprint  string     `json:"file_hash"`
	FilePath     string     `json:"file_path"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// RandomImageResponse is returned by GET /random-image.
type RandomImageResponse struct {
	Fingerprint string `json:"file_hash"`
	// Image is the base64 encoded derived JPEG.
	Image string `json:"image"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Jobs          map[string]int `json:"jobs"`
}
