// Package statusserver exposes a minimal gin-based HTTP surface for
// observing a long-running multi-night processing run: each night's
// current pipeline stage and, on request, its recent log lines.
//
// Grounded on the teacher's internal/rest/serve.go Serve/gin.Default
// route-group shape, replacing its job-submission API (irrelevant here,
// since a run's work is fixed by its config file) with read-only status
// endpoints.
package statusserver

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/LutherAstrophysics/m23/internal/night"
)

// NightStatus is one night's reportable state.
type NightStatus struct {
	Date     string   `json:"date"`
	Stage    string   `json:"stage"`
	Error    string   `json:"error,omitempty"`
	LogLines []string `json:"logLines,omitempty"`
}

// Tracker is a thread-safe registry of night statuses, updated through
// the orchestrator's OnStage hook when each night finishes or fails, and
// read by the HTTP handlers below.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*NightStatus
}

func NewTracker() *Tracker {
	return &Tracker{statuses: map[string]*NightStatus{}}
}

// Set records date's current stage (and error, if any).
func (t *Tracker) Set(date string, stage night.Stage, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[date]
	if !ok {
		s = &NightStatus{Date: date}
		t.statuses[date] = s
	}
	s.Stage = stage.String()
	if err != nil {
		s.Error = err.Error()
	}
}

// AppendLog appends a line to date's recent log buffer, keeping only the
// most recent maxLogLines.
func (t *Tracker) AppendLog(date, line string, maxLogLines int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[date]
	if !ok {
		s = &NightStatus{Date: date}
		t.statuses[date] = s
	}
	s.LogLines = append(s.LogLines, line)
	if len(s.LogLines) > maxLogLines {
		s.LogLines = s.LogLines[len(s.LogLines)-maxLogLines:]
	}
}

func (t *Tracker) list() []NightStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NightStatus, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	return out
}

func (t *Tracker) get(date string) (NightStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[date]
	if !ok {
		return NightStatus{}, false
	}
	return *s, true
}

// New builds the gin engine exposing GET /nights and GET /nights/:date.
func New(tracker *Tracker) *gin.Engine {
	r := gin.Default()
	nights := r.Group("/nights")
	{
		nights.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, tracker.list())
		})
		nights.GET("/:date", func(c *gin.Context) {
			s, ok := tracker.get(c.Param("date"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown night"})
				return
			}
			c.JSON(http.StatusOK, s)
		})
	}
	return r
}

// Serve blocks, serving the status API at addr.
func Serve(tracker *Tracker, addr string) error {
	return New(tracker).Run(addr)
}
