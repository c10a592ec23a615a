package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/test", 200, 100*time.Millisecond)
	RecordRequest("POST", "/test", 201, 50*time.Millisecond)
	RecordRequest("GET", "/test", 404, 10*time.Millisecond)
}

func TestRecordDispatchRun(t *testing.T) {
	RecordDispatchRun("success", 120*time.Millisecond)
	RecordDispatchRun("error", 5*time.Millisecond)
}

func TestRecordReminderSent(t *testing.T) {
	RecordReminderSent("check_in_reminder")
	RecordReminderSent("check_out_reminder")
}

func TestRecordDispatchError(t *testing.T) {
	RecordDispatchError("attendance_lookup")
	RecordDispatchError("provider_send")
}

func TestRecordClaimConflict(t *testing.T) {
	RecordClaimConflict()
	RecordClaimConflict()
}

func TestRecordPushBatch(t *testing.T) {
	RecordPushBatch("sns", 200*time.Millisecond)
	RecordPushBatch("webpush", 80*time.Millisecond)
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("ip:10.0.0.1")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest("POST", "/v1/dispatch/run", nil)
	rec := httptest.NewRecorder()

	Middleware(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
	}
}
