package session

import (
	"fmt"

	"github.com/junsooki/framereel/internal/export"
	"github.com/junsooki/framereel/internal/playback"
)

// Status is a snapshot of a session for display.
type Status struct {
	SessionID  string
	Mode       playback.Mode
	Cursor     int
	Buffered   int
	Resolution int
	Connected  bool
	Export     export.State
	LastError  string
	LastSaved  string
}

// Lines formats the status for the heads-up display.
func (st Status) Lines() []string {
	conn := "offline"
	if st.Connected {
		conn = "connected"
	}
	lines := []string{
		fmt.Sprintf("%s  frame %d/%d", st.Mode, st.Cursor, st.Buffered),
		fmt.Sprintf("grid %dx%d  %s", st.Resolution, st.Resolution, conn),
		fmt.Sprintf("export %s", st.Export),
	}
	if st.LastSaved != "" {
		lines = append(lines, "saved "+st.LastSaved)
	}
	if st.LastError != "" {
		lines = append(lines, "error: "+st.LastError)
	}
	return lines
}

// Status returns the latest snapshot. Safe for concurrent use.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// StatusLines is Status().Lines().
func (s *Session) StatusLines() []string {
	return s.Status().Lines()
}

func (s *Session) publishStatus() {
	ps := s.sched.State()
	st := Status{
		SessionID:  s.id,
		Mode:       ps.Mode,
		Cursor:     ps.Cursor,
		Buffered:   ps.Buffered,
		Resolution: s.settings.GridSize(),
		Connected:  s.client.Connected(),
		Export:     s.export.State(),
		LastError:  s.lastError,
		LastSaved:  s.lastSaved,
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
