// Package dispatch implements the check-in/check-out reminder dispatcher:
// scan every running project, and inside a short window after its
// configured work time send one push reminder to the workers who still
// need to act, at most once per project, kind and calendar day.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/db"
	"github.com/paintconnect/foreman/internal/metrics"
	"github.com/paintconnect/foreman/internal/push"
)

// Store is the slice of the repository the dispatcher needs. Everything is
// read-only except the dispatch claim and the notification log.
type Store interface {
	ListRunningProjects(ctx context.Context) ([]*db.Project, error)
	CheckedInWorkerIDs(ctx context.Context, projectID uuid.UUID, day string) ([]uuid.UUID, error)
	ClockedInWorkerIDs(ctx context.Context, projectID uuid.UUID, day string) ([]uuid.UUID, error)
	ActiveSubscriptions(ctx context.Context, workerIDs []uuid.UUID) ([]*db.PushSubscription, error)
	HasDispatch(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error)
	ClaimDispatch(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error)
	InsertNotificationLogs(ctx context.Context, logs []*db.NotificationLog) error
	DeactivateSubscriptions(ctx context.Context, endpoints []string) error
}

// Guard is an optional fast-path reservation in front of the DB claim
// (redis SetNX). A Guard failure never blocks a dispatch; the DB claim is
// authoritative. Release exists so a reservation can be handed back when
// the claim write itself fails, otherwise a transient DB error would block
// every later in-window retry.
type Guard interface {
	Reserve(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error)
	Release(ctx context.Context, projectID uuid.UUID, kind, day string) error
}

// Event describes one dispatched reminder batch for the audit stream.
type Event struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Kind        string    `json:"kind"`
	Day         string    `json:"day"`
	Workers     int       `json:"workers"`
	Endpoints   int       `json:"endpoints"`
	Provider    string    `json:"provider"`
	SentAt      int64     `json:"sent_at"`
}

// Auditor receives dispatch events for downstream analytics. Optional;
// failures are logged and ignored.
type Auditor interface {
	DispatchRecorded(ctx context.Context, ev Event) error
}

type Config struct {
	// WindowMinutes is the dispatch window length after a configured
	// work time. A run before the time or at/after time+window never
	// fires; a missed window is never triggered retroactively.
	WindowMinutes int

	// Location is the fixed civil timezone all work-time comparisons
	// happen in, independent of the server's own zone.
	Location *time.Location
}

type Dispatcher struct {
	store  Store
	sender push.Sender
	guard  Guard
	audit  Auditor
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, sender push.Sender, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Dispatcher{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithGuard attaches the optional redis reservation guard.
func (d *Dispatcher) WithGuard(g Guard) *Dispatcher {
	d.guard = g
	return d
}

// WithAuditor attaches the optional audit event sink.
func (d *Dispatcher) WithAuditor(a Auditor) *Dispatcher {
	d.audit = a
	return d
}

// WithClock replaces the wall clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run executes one dispatcher invocation. Per-project failures are traced
// and skipped; only a failure to list the candidate projects at all is
// returned as an error.
func (d *Dispatcher) Run(ctx context.Context) (*Report, error) {
	wallStart := time.Now()
	now := d.now().In(d.cfg.Location)
	day := now.Format("2006-01-02")

	rep := newReport(now)
	rep.Tracef("run started at %s %s", rep.CurrentTime, d.cfg.Location)

	projects, err := d.store.ListRunningProjects(ctx)
	if err != nil {
		metrics.RecordDispatchRun("error", time.Since(wallStart))
		return rep.fail(err), fmt.Errorf("list running projects: %w", err)
	}

	nowTod := TimeOfDayFrom(now)
	for _, p := range projects {
		rep.ProjectsChecked++
		d.runPass(ctx, rep, p, db.KindCheckIn, p.WorkStartTime, nowTod, day)
		d.runPass(ctx, rep, p, db.KindCheckOut, p.WorkEndTime, nowTod, day)
	}

	d.logger.Info("dispatch run complete",
		zap.String("current_time", rep.CurrentTime),
		zap.Int("projects_checked", rep.ProjectsChecked),
		zap.Int("check_in_sent", rep.CheckInRemindersSent),
		zap.Int("check_out_sent", rep.CheckOutRemindersSent),
		zap.Duration("duration", time.Since(wallStart)),
	)
	metrics.RecordDispatchRun("success", time.Since(wallStart))

	return rep, nil
}

func (d *Dispatcher) runPass(ctx context.Context, rep *Report, p *db.Project, kind string, configured *string, now TimeOfDay, day string) {
	// No configured time or no crew: this pass never applies.
	if configured == nil || *configured == "" || len(p.WorkerIDs) == 0 {
		return
	}

	trigger, err := ParseTimeOfDay(*configured)
	if err != nil {
		// Malformed time skips this pass only; the other pass may
		// still fire for the project.
		rep.Tracef("%s: %s pass skipped: %v", p.Name, passLabel(kind), err)
		d.logger.Warn("malformed work time",
			zap.String("project_id", p.ID.String()),
			zap.String("kind", kind),
			zap.String("value", *configured),
		)
		return
	}

	diff := now.MinutesSince(trigger)
	if diff < 0 || diff >= d.cfg.WindowMinutes {
		return
	}

	rep.Tracef("%s: inside %s window (%s +%dmin)", p.Name, passLabel(kind), trigger, diff)

	pending, err := d.pendingWorkers(ctx, p, kind, day)
	if err != nil {
		rep.Tracef("%s: attendance lookup failed: %v", p.Name, err)
		metrics.RecordDispatchError("attendance_lookup")
		d.logger.Error("attendance lookup failed",
			zap.String("project_id", p.ID.String()),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}
	if len(pending) == 0 {
		rep.Tracef("%s: everyone already acted, nothing to send", p.Name)
		return
	}

	dispatched, err := d.store.HasDispatch(ctx, p.ID, kind, day)
	if err != nil {
		rep.Tracef("%s: dedupe check failed: %v", p.Name, err)
		metrics.RecordDispatchError("dedupe_check")
		return
	}
	if dispatched {
		rep.Tracef("%s: %s already dispatched today", p.Name, passLabel(kind))
		return
	}

	subs, err := d.store.ActiveSubscriptions(ctx, pending)
	if err != nil {
		rep.Tracef("%s: subscription lookup failed: %v", p.Name, err)
		metrics.RecordDispatchError("subscription_lookup")
		return
	}
	if len(subs) == 0 {
		// No deliverable targets. Deliberately no claim either, so a
		// later run inside the window may retry once a device shows up.
		rep.Tracef("%s: %d pending worker(s) but no active endpoints", p.Name, len(pending))
		return
	}

	reserved := false
	if d.guard != nil {
		ok, err := d.guard.Reserve(ctx, p.ID, kind, day)
		if err != nil {
			d.logger.Warn("dedupe guard unavailable, relying on DB claim", zap.Error(err))
		} else if !ok {
			rep.Tracef("%s: %s reserved by a concurrent run", p.Name, passLabel(kind))
			metrics.RecordClaimConflict()
			return
		} else {
			reserved = true
		}
	}

	claimed, err := d.store.ClaimDispatch(ctx, p.ID, kind, day)
	if err != nil {
		// Nothing was sent and no claim row exists, so hand the
		// reservation back. Holding it would block every later
		// in-window retry for the rest of the day.
		if reserved {
			if relErr := d.guard.Release(ctx, p.ID, kind, day); relErr != nil {
				d.logger.Warn("failed to release dedupe reservation", zap.Error(relErr))
			}
		}
		rep.Tracef("%s: dispatch claim failed: %v", p.Name, err)
		metrics.RecordDispatchError("claim_write")
		return
	}
	if !claimed {
		rep.Tracef("%s: %s claimed by a concurrent run", p.Name, passLabel(kind))
		metrics.RecordClaimConflict()
		return
	}

	d.send(ctx, rep, p, kind, day, pending, subs)
}

// pendingWorkers resolves who still needs to act. For check-in that is the
// assigned set minus everyone with a check-in today; for check-out it is
// everyone still on the clock (attendance implicitly intersects with the
// assigned set).
func (d *Dispatcher) pendingWorkers(ctx context.Context, p *db.Project, kind, day string) ([]uuid.UUID, error) {
	if kind == db.KindCheckOut {
		return d.store.ClockedInWorkerIDs(ctx, p.ID, day)
	}

	checkedIn, err := d.store.CheckedInWorkerIDs(ctx, p.ID, day)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(checkedIn))
	for _, id := range checkedIn {
		seen[id] = struct{}{}
	}

	var pending []uuid.UUID
	for _, id := range p.WorkerIDs {
		if _, ok := seen[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending, nil
}

func (d *Dispatcher) send(ctx context.Context, rep *Report, p *db.Project, kind, day string, pending []uuid.UUID, subs []*db.PushSubscription) {
	batch := &push.Batch{
		ProjectID: p.ID,
		Kind:      kind,
		Title:     reminderTitle(kind),
		Body:      reminderBody(kind, p.Name),
		Data: map[string]string{
			"project_id": p.ID.String(),
			"kind":       kind,
		},
	}
	for _, s := range subs {
		batch.Endpoints = append(batch.Endpoints, push.Endpoint{
			Token:  s.Endpoint,
			P256dh: s.P256dh,
			Auth:   s.Auth,
		})
	}

	sendStart := time.Now()
	resp, sendErr := d.sender.Send(ctx, batch)
	metrics.RecordPushBatch(d.sender.Name(), time.Since(sendStart))

	// The provider's raw payload is logged verbatim, success or error.
	var providerResponse json.RawMessage
	switch {
	case resp != nil && len(resp.Raw) > 0:
		providerResponse = resp.Raw
	case sendErr != nil:
		providerResponse, _ = json.Marshal(map[string]string{"error": sendErr.Error()})
	}

	// One log row per targeted worker, only workers that actually had an
	// endpoint in the batch.
	targeted := make(map[uuid.UUID]struct{})
	var logs []*db.NotificationLog
	for _, s := range subs {
		if _, ok := targeted[s.WorkerID]; ok {
			continue
		}
		targeted[s.WorkerID] = struct{}{}
		logs = append(logs, &db.NotificationLog{
			ProjectID:        p.ID,
			WorkerID:         s.WorkerID,
			Kind:             kind,
			SentOn:           day,
			ProviderResponse: providerResponse,
		})
	}

	if err := d.store.InsertNotificationLogs(ctx, logs); err != nil {
		rep.Tracef("%s: log write failed: %v", p.Name, err)
		metrics.RecordDispatchError("log_write")
		d.logger.Error("notification log write failed",
			zap.String("project_id", p.ID.String()),
			zap.Error(err),
		)
	}

	if resp != nil && len(resp.GoneEndpoints) > 0 {
		if err := d.store.DeactivateSubscriptions(ctx, resp.GoneEndpoints); err != nil {
			d.logger.Warn("failed to deactivate gone endpoints", zap.Error(err))
		} else {
			rep.Tracef("%s: deactivated %d gone endpoint(s)", p.Name, len(resp.GoneEndpoints))
		}
	}

	// A failed delivery still counts as the day's dispatch attempt; it is
	// recorded, not retried.
	if kind == db.KindCheckIn {
		rep.CheckInRemindersSent++
	} else {
		rep.CheckOutRemindersSent++
	}
	metrics.RecordReminderSent(kind)

	if sendErr != nil {
		rep.Tracef("%s: %s dispatched to %d worker(s) but provider failed: %v",
			p.Name, passLabel(kind), len(logs), sendErr)
		metrics.RecordDispatchError("provider_send")
		d.logger.Error("push delivery failed",
			zap.String("project_id", p.ID.String()),
			zap.String("kind", kind),
			zap.Error(sendErr),
		)
	} else {
		rep.Tracef("%s: %s sent to %d worker(s) across %d endpoint(s)",
			p.Name, passLabel(kind), len(logs), len(batch.Endpoints))
		d.logger.Info("reminder dispatched",
			zap.String("project_id", p.ID.String()),
			zap.String("project", p.Name),
			zap.String("kind", kind),
			zap.Int("workers", len(logs)),
			zap.Int("endpoints", len(batch.Endpoints)),
		)
	}

	if d.audit != nil {
		ev := Event{
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Kind:        kind,
			Day:         day,
			Workers:     len(logs),
			Endpoints:   len(batch.Endpoints),
			Provider:    d.sender.Name(),
			SentAt:      time.Now().Unix(),
		}
		if err := d.audit.DispatchRecorded(ctx, ev); err != nil {
			d.logger.Warn("audit event not recorded", zap.Error(err))
		}
	}
}

func passLabel(kind string) string {
	if kind == db.KindCheckOut {
		return "check-out"
	}
	return "check-in"
}

func reminderTitle(kind string) string {
	if kind == db.KindCheckOut {
		return "Time to check out"
	}
	return "Time to check in"
}

func reminderBody(kind, project string) string {
	if kind == db.KindCheckOut {
		return fmt.Sprintf("Work on %s is wrapping up. Don't forget to check out.", project)
	}
	return fmt.Sprintf("Work on %s starts now. Don't forget to check in.", project)
}
