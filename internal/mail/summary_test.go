package mail

import (
	"strings"
	"testing"

	"github.com/paintconnect/foreman/internal/dispatch"
)

func TestSummaryBody(t *testing.T) {
	rep := &dispatch.Report{
		Success:              true,
		Timestamp:            "2026-03-02T08:02:10+01:00",
		CurrentTime:          "08:02",
		ProjectsChecked:      3,
		CheckInRemindersSent: 2,
		Debug:                []string{"checking 3 projects", "project Villa Jansen: check-in reminder sent"},
	}

	body := summaryBody(rep)
	for _, want := range []string{
		"Projects checked:    3",
		"Check-in reminders:  2",
		"Check-out reminders: 0",
		"project Villa Jansen: check-in reminder sent",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Error:") {
		t.Error("successful run should not include an error section")
	}
}

func TestSummaryBodyIncludesError(t *testing.T) {
	rep := &dispatch.Report{
		Success:     false,
		CurrentTime: "08:02",
		Error:       "list running projects: connection refused",
		Debug:       []string{},
	}

	body := summaryBody(rep)
	if !strings.Contains(body, "Error: list running projects: connection refused") {
		t.Errorf("body missing error line:\n%s", body)
	}
}
