package dispatch

import (
	"fmt"
	"time"
)

// Report is the JSON body returned to the scheduler that triggered the run.
// Debug carries the free-form trace the operations dashboard shows next to
// the structured logs; field names are part of the external contract.
type Report struct {
	Success               bool     `json:"success"`
	Timestamp             string   `json:"timestamp"`
	CurrentTime           string   `json:"currentTime"`
	ProjectsChecked       int      `json:"projectsChecked"`
	CheckInRemindersSent  int      `json:"check_in_reminders_sent"`
	CheckOutRemindersSent int      `json:"check_out_reminders_sent"`
	Error                 string   `json:"error,omitempty"`
	Debug                 []string `json:"debug"`
}

func newReport(now time.Time) *Report {
	return &Report{
		Success:     true,
		Timestamp:   now.Format(time.RFC3339),
		CurrentTime: TimeOfDayFrom(now).String(),
		Debug:       []string{},
	}
}

// Tracef appends one line to the debug trace.
func (r *Report) Tracef(format string, args ...any) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

func (r *Report) fail(err error) *Report {
	r.Success = false
	r.Error = err.Error()
	return r
}
