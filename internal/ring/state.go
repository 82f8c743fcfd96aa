package ring

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// State is the telemetry snapshot of one ring. It is produced outside this
// service and only read here.
type State struct {
	Ring              string        `json:"ring"`
	SuccessRate       float64       `json:"success_rate"`
	TimeToCompliance  time.Duration `json:"time_to_compliance"`
	OpenIncidents     int           `json:"open_incidents"`
	RollbackValidated bool          `json:"rollback_validated"`
}

// stateJSON carries TimeToCompliance as a Go duration string ("36h").
type stateJSON struct {
	Ring              string  `json:"ring"`
	SuccessRate       float64 `json:"success_rate"`
	TimeToCompliance  string  `json:"time_to_compliance"`
	OpenIncidents     int     `json:"open_incidents"`
	RollbackValidated bool    `json:"rollback_validated"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Ring:              s.Ring,
		SuccessRate:       s.SuccessRate,
		TimeToCompliance:  s.TimeToCompliance.String(),
		OpenIncidents:     s.OpenIncidents,
		RollbackValidated: s.RollbackValidated,
	})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ttc := strings.TrimSpace(raw.TimeToCompliance)
	if ttc == "" {
		return fmt.Errorf("ring state %q: time_to_compliance is required", raw.Ring)
	}
	d, err := time.ParseDuration(ttc)
	if err != nil {
		return fmt.Errorf("ring state %q: time_to_compliance: %w", raw.Ring, err)
	}
	if d < 0 || raw.OpenIncidents < 0 || raw.SuccessRate < 0 || raw.SuccessRate > 100 {
		return fmt.Errorf("ring state %q: telemetry values out of range", raw.Ring)
	}
	*s = State{
		Ring:              raw.Ring,
		SuccessRate:       raw.SuccessRate,
		TimeToCompliance:  d,
		OpenIncidents:     raw.OpenIncidents,
		RollbackValidated: raw.RollbackValidated,
	}
	return nil
}
