package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database access for the reminder dispatcher. Project,
// worker and attendance tables are owned by the main application and are
// read-only here; the dispatcher only writes claims and notification logs.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new dispatch repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListRunningProjects returns all in-progress projects together with their
// assigned worker sets. Projects without assigned workers come back with an
// empty set and are skipped by the dispatcher.
func (r *Repository) ListRunningProjects(ctx context.Context) ([]*Project, error) {
	query := `
		SELECT
			p.id, p.company_id, p.name, p.status,
			p.work_start_time, p.work_end_time,
			COALESCE(ARRAY_AGG(pw.worker_id::text) FILTER (WHERE pw.worker_id IS NOT NULL), '{}'),
			p.created_at
		FROM projects p
		LEFT JOIN project_workers pw ON pw.project_id = p.id
		WHERE p.status = $1
		GROUP BY p.id
		ORDER BY p.created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, ProjectStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("query running projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var workerIDs []string
		err := rows.Scan(
			&p.ID,
			&p.CompanyID,
			&p.Name,
			&p.Status,
			&p.WorkStartTime,
			&p.WorkEndTime,
			&workerIDs,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}

		for _, raw := range workerIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parse worker id %q: %w", raw, err)
			}
			p.WorkerIDs = append(p.WorkerIDs, id)
		}

		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return projects, nil
}

// CheckedInWorkerIDs returns the workers who have checked in on the project
// for the given day.
func (r *Repository) CheckedInWorkerIDs(ctx context.Context, projectID uuid.UUID, day string) ([]uuid.UUID, error) {
	query := `
		SELECT worker_id
		FROM attendance_records
		WHERE project_id = $1 AND work_date = $2::date AND check_in_time IS NOT NULL
	`
	return r.queryWorkerIDs(ctx, query, projectID, day)
}

// ClockedInWorkerIDs returns the workers who are currently on the clock for
// the project today: checked in, not yet checked out.
func (r *Repository) ClockedInWorkerIDs(ctx context.Context, projectID uuid.UUID, day string) ([]uuid.UUID, error) {
	query := `
		SELECT worker_id
		FROM attendance_records
		WHERE project_id = $1 AND work_date = $2::date
		  AND check_in_time IS NOT NULL AND check_out_time IS NULL
	`
	return r.queryWorkerIDs(ctx, query, projectID, day)
}

func (r *Repository) queryWorkerIDs(ctx context.Context, query string, projectID uuid.UUID, day string) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx, query, projectID, day)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan worker id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return ids, nil
}

// ActiveSubscriptions returns all active push subscriptions for any of the
// given workers. An empty result is not an error; workers without a device
// simply produce no deliverable notification.
func (r *Repository) ActiveSubscriptions(ctx context.Context, workerIDs []uuid.UUID) ([]*PushSubscription, error) {
	if len(workerIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(workerIDs))
	for i, id := range workerIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT id, worker_id, endpoint, COALESCE(p256dh, ''), COALESCE(auth, ''), active, created_at
		FROM push_subscriptions
		WHERE worker_id = ANY($1::uuid[]) AND active
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*PushSubscription
	for rows.Next() {
		var s PushSubscription
		err := rows.Scan(&s.ID, &s.WorkerID, &s.Endpoint, &s.P256dh, &s.Auth, &s.Active, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return subs, nil
}

// HasDispatch reports whether a reminder of this kind has already been
// claimed for the project today.
func (r *Repository) HasDispatch(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dispatch_claims
			WHERE project_id = $1 AND kind = $2 AND sent_on = $3::date
		)
	`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, projectID, kind, day).Scan(&exists); err != nil {
		return false, fmt.Errorf("query dispatch claim: %w", err)
	}

	return exists, nil
}

// ClaimDispatch records that a reminder of this kind is being sent for the
// project today. The unique constraint on (project_id, kind, sent_on) makes
// the claim atomic: of two overlapping runs exactly one gets true back, the
// other sees a conflict and must skip.
func (r *Repository) ClaimDispatch(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error) {
	query := `
		INSERT INTO dispatch_claims (id, project_id, kind, sent_on)
		VALUES ($1, $2, $3, $4::date)
		ON CONFLICT (project_id, kind, sent_on) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query, uuid.New(), projectID, kind, day)
	if err != nil {
		return false, fmt.Errorf("insert dispatch claim: %w", err)
	}

	claimed := result.RowsAffected() == 1
	if !claimed {
		r.logger.Debug("dispatch claim lost to concurrent run",
			zap.String("project_id", projectID.String()),
			zap.String("kind", kind),
			zap.String("day", day),
		)
	}

	return claimed, nil
}

// InsertNotificationLogs writes one log row per targeted worker in a single
// batch. Rows are append-only.
func (r *Repository) InsertNotificationLogs(ctx context.Context, logs []*NotificationLog) error {
	if len(logs) == 0 {
		return nil
	}

	query := `
		INSERT INTO notification_logs (id, project_id, worker_id, kind, sent_on, provider_response)
		VALUES ($1, $2, $3, $4, $5::date, $6)
	`

	batch := &pgx.Batch{}
	for _, l := range logs {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		batch.Queue(query, l.ID, l.ProjectID, l.WorkerID, l.Kind, l.SentOn, l.ProviderResponse)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for range logs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification log: %w", err)
		}
	}

	r.logger.Info("notification logs written",
		zap.Int("count", len(logs)),
		zap.String("kind", logs[0].Kind),
		zap.String("project_id", logs[0].ProjectID.String()),
	)

	return nil
}

// ListNotificationLogs returns recent log rows for the audit endpoint,
// optionally filtered by project.
func (r *Repository) ListNotificationLogs(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]*NotificationLog, error) {
	query := `
		SELECT id, project_id, worker_id, kind, sent_on::text, provider_response, created_at
		FROM notification_logs
		WHERE ($1::uuid IS NULL OR project_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notification logs: %w", err)
	}
	defer rows.Close()

	var logs []*NotificationLog
	for rows.Next() {
		var l NotificationLog
		err := rows.Scan(&l.ID, &l.ProjectID, &l.WorkerID, &l.Kind, &l.SentOn, &l.ProviderResponse, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return logs, nil
}

// DeactivateSubscriptions flags endpoints the push service reported as gone
// (web push 404/410) so later runs stop targeting them.
func (r *Repository) DeactivateSubscriptions(ctx context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}

	query := `UPDATE push_subscriptions SET active = FALSE WHERE endpoint = ANY($1)`

	result, err := r.db.Pool().Exec(ctx, query, endpoints)
	if err != nil {
		return fmt.Errorf("deactivate subscriptions: %w", err)
	}

	r.logger.Info("stale push subscriptions deactivated",
		zap.Int64("count", result.RowsAffected()),
	)

	return nil
}
