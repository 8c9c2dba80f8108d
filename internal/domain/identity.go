package domain

import "time"

// RegistrationState is the remote search registration lifecycle.
type RegistrationState string

const (
	StateUnregistered       RegistrationState = "unregistered"
	StateRegistering        RegistrationState = "registering"
	StateRegistered         RegistrationState = "registered"
	StateRegistrationFailed RegistrationState = "registration_failed"
)

// InstallationIdentity is the durable per-installation identity used by
// remote search. It is created lazily and never rotated.
type InstallationIdentity struct {
	InstallID    string            `json:"install_id"`
	State        RegistrationState `json:"state"`
	APIKey       string            `json:"api_key,omitempty"`
	APIKeyHeader string            `json:"api_key_header,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	RegisteredAt time.Time         `json:"registered_at,omitzero"`
	FailedAt     time.Time         `json:"failed_at,omitzero"`
	LastError    string            `json:"last_error,omitempty"`
}
