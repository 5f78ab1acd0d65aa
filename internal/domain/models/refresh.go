package models

// RefreshRunState is the status of the background generation job. Times are
// null until set; exit_code is null while running or before the first run.
type RefreshRunState struct {
	RunID      string  `json:"run_id,omitempty"`
	Running    bool    `json:"running"`
	StartedAt  *string `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
	ExitCode   *int    `json:"exit_code"`
	Message    string  `json:"message"`
}

// Clone returns a copy that shares no pointers with s.
func (s RefreshRunState) Clone() RefreshRunState {
	out := s
	if s.StartedAt != nil {
		v := *s.StartedAt
		out.StartedAt = &v
	}
	if s.FinishedAt != nil {
		v := *s.FinishedAt
		out.FinishedAt = &v
	}
	if s.ExitCode != nil {
		v := *s.ExitCode
		out.ExitCode = &v
	}
	return out
}

// RefreshStartResponse is returned by refresh-run.
type RefreshStartResponse struct {
	Started bool            `json:"started"`
	Status  RefreshRunState `json:"status"`
	Message string          `json:"message,omitempty"`
}
