package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Project status constants. Only in-progress projects are scanned by the
// reminder dispatcher.
const (
	ProjectStatusPlanned    = "planned"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusArchived   = "archived"
)

// Reminder kinds. One dispatch claim per (project, kind, day).
const (
	KindCheckIn  = "check_in_reminder"
	KindCheckOut = "check_out_reminder"
)

// Project is a painting job owned by a company. Work times are stored as
// bare local time-of-day strings ("HH:MM" or "HH:MM:SS") with no timezone;
// the dispatcher interprets them in its configured zone.
type Project struct {
	ID            uuid.UUID   `json:"id"`
	CompanyID     uuid.UUID   `json:"company_id"`
	Name          string      `json:"name"`
	Status        string      `json:"status"`
	WorkStartTime *string     `json:"work_start_time,omitempty"`
	WorkEndTime   *string     `json:"work_end_time,omitempty"`
	WorkerIDs     []uuid.UUID `json:"worker_ids"`
	CreatedAt     time.Time   `json:"created_at"`
}

// PushSubscription is one registered device/browser endpoint for a worker.
// Endpoint is the opaque provider token (SNS endpoint ARN or web push URL);
// P256dh/Auth are only set for web push subscriptions.
type PushSubscription struct {
	ID        uuid.UUID `json:"id"`
	WorkerID  uuid.UUID `json:"worker_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh,omitempty"`
	Auth      string    `json:"auth,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationLog records one reminder attempt for one worker, including
// the provider's raw response for auditability. Rows are never updated.
type NotificationLog struct {
	ID               uuid.UUID       `json:"id"`
	ProjectID        uuid.UUID       `json:"project_id"`
	WorkerID         uuid.UUID       `json:"worker_id"`
	Kind             string          `json:"kind"`
	SentOn           string          `json:"sent_on"` // YYYY-MM-DD
	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
