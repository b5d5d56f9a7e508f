package syncengine

import (
	"sync"
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// Status is the per-owner sync health shown to the UI.
type Status struct {
	Owner         models.Owner `json:"owner"`
	LastPassAt    *time.Time   `json:"lastPassAt,omitempty"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt,omitempty"`
	LastError     string       `json:"lastError,omitempty"`

	ConsecutiveFailures int  `json:"consecutiveFailures"`
	Degraded            bool `json:"degraded"`
	Offline             bool `json:"offline"`
	AuthRequired        bool `json:"authRequired"`
	Running             bool `json:"running"`

	PendingAppointments  int `json:"pendingAppointments"`
	PendingPrescriptions int `json:"pendingPrescriptions"`
}

type ownerHealth struct {
	lastPass    time.Time
	lastSuccess time.Time
	lastErr     string
	failures    int
	offline     bool
	authNeeded  bool
}

type healthBook struct {
	threshold int

	mu     sync.Mutex
	owners map[models.Owner]*ownerHealth
}

func newHealthBook(threshold int) *healthBook {
	return &healthBook{threshold: threshold, owners: map[models.Owner]*ownerHealth{}}
}

func (h *healthBook) get(owner models.Owner) *ownerHealth {
	oh, ok := h.owners[owner]
	if !ok {
		oh = &ownerHealth{}
		h.owners[owner] = oh
	}
	return oh
}

// finish records the outcome of a pass. Network failures only set the
// offline flag; every other failure counts towards degraded.
func (h *healthBook) finish(owner models.Owner, at time.Time, res *PassResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	oh := h.get(owner)
	oh.lastPass = at
	oh.offline = res.Offline
	oh.authNeeded = false

	switch {
	case err == nil:
		oh.lastSuccess = at
		oh.lastErr = ""
		if !res.Offline {
			oh.failures = 0
		}
	case httperr.Retryable(err):
		oh.offline = true
		oh.lastErr = err.Error()
	default:
		oh.failures++
		oh.lastErr = err.Error()
		oh.authNeeded = isAuthRequired(err)
	}
}

func (h *healthBook) degraded(owner models.Owner) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	oh, ok := h.owners[owner]
	return ok && oh.failures >= h.threshold
}

func (h *healthBook) snapshot(owner models.Owner) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Status{Owner: owner}
	oh, ok := h.owners[owner]
	if !ok {
		return st
	}
	if !oh.lastPass.IsZero() {
		t := oh.lastPass
		st.LastPassAt = &t
	}
	if !oh.lastSuccess.IsZero() {
		t := oh.lastSuccess
		st.LastSuccessAt = &t
	}
	st.LastError = oh.lastErr
	st.ConsecutiveFailures = oh.failures
	st.Degraded = oh.failures >= h.threshold
	st.Offline = oh.offline
	st.AuthRequired = oh.authNeeded
	return st
}
