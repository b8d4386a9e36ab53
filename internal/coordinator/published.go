package coordinator

import (
	"time"

	"github.com/malosaaa/p2000mon/internal/models"
)

// PublishedState is the consumer-facing projection of one instance: the
// priority code of the selected message as the state value, plus the enabled
// attributes, plus enough poll bookkeeping to judge freshness.
type PublishedState struct {
	Instance             string              `json:"instance"`
	RegionPath           string              `json:"region_path"`
	State                string              `json:"state,omitempty"`
	MatchesFilter        bool                `json:"matches_filter"`
	Attributes           map[string]any      `json:"attributes,omitempty"`
	LastUpdateStatus     models.UpdateStatus `json:"last_update_status"`
	LastUpdateAttempt    *time.Time          `json:"last_update_attempt,omitempty"`
	LastSuccessfulUpdate *time.Time          `json:"last_successful_update,omitempty"`
	ConsecutiveErrors    int                 `json:"consecutive_errors"`
	LastError            string              `json:"last_error,omitempty"`
	Phase                models.Phase        `json:"phase"`
}

// Published builds the consumer view from the current state.
func (c *Coordinator) Published() PublishedState {
	st := c.State()

	out := PublishedState{
		Instance:             c.name,
		RegionPath:           c.regionPath,
		MatchesFilter:        st.MatchesFilter,
		LastUpdateStatus:     st.LastUpdateStatus,
		LastUpdateAttempt:    st.LastUpdateAttempt,
		LastSuccessfulUpdate: st.LastSuccessfulUpdate,
		ConsecutiveErrors:    st.ConsecutiveErrors,
		LastError:            st.LastError,
		Phase:                st.Phase,
	}
	if st.LastMessage != nil {
		out.State = st.LastMessage.PriorityCode
		out.Attributes = st.LastMessage.Attributes(c.sensors)
	}
	return out
}

// Diagnostics is a full dump of one instance: its configuration, its state
// and what the last parse looked like.
type Diagnostics struct {
	Instance     string                  `json:"instance"`
	RegionPath   string                  `json:"region_path"`
	URL          string                  `json:"url"`
	ScanInterval string                  `json:"scan_interval"`
	Sensors      []string                `json:"sensors"`
	Filters      []models.ServiceType    `json:"filters"`
	State        models.CoordinatorState `json:"state"`
	LastParse    *ParseStats             `json:"last_parse,omitempty"`
}

// Diagnose collects the diagnostics dump.
func (c *Coordinator) Diagnose() Diagnostics {
	c.mu.RLock()
	state := c.state
	lastParse := c.lastParse
	c.mu.RUnlock()

	return Diagnostics{
		Instance:     c.name,
		RegionPath:   c.regionPath,
		URL:          c.URL(),
		ScanInterval: c.interval.String(),
		Sensors:      c.sensors,
		Filters:      c.filter.Types(),
		State:        state,
		LastParse:    lastParse,
	}
}
