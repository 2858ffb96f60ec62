package dashboard

import "chemviz/internal/models"

// Snapshot is a point-in-time copy of the state for renderers.
type Snapshot struct {
	Authenticated bool                  `json:"authenticated"`
	Report        *models.SummaryReport `json:"report"`
	History       []models.HistoryEntry `json:"history"`
	Search        string                `json:"search"`
	VisibleRows   []models.EquipmentRow `json:"visible_rows"`
	NoMatches     bool                  `json:"no_matches"`
	CanDownload   bool                  `json:"can_download"`
	Loading       bool                  `json:"loading"`
	Uploading     bool                  `json:"uploading"`
	Downloading   bool                  `json:"downloading"`
	Error         string                `json:"error,omitempty"`
	Alert         string                `json:"alert,omitempty"`
}

// Snapshot copies the current state. Reports are replaced, never mutated,
// so sharing the pointer is safe.
func (s *State) Snapshot() Snapshot {
	authenticated := s.session.Authenticated()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Authenticated: authenticated,
		Report:        s.report,
		History:       append([]models.HistoryEntry{}, s.history...),
		Search:        s.search,
		VisibleRows:   []models.EquipmentRow{},
		CanDownload:   s.report != nil && !s.downloading,
		Loading:       s.loading,
		Uploading:     s.uploading,
		Downloading:   s.downloading,
		Error:         s.errMsg,
		Alert:         s.alert,
	}
	if s.report != nil {
		snap.VisibleRows = Filter(s.report.Data, s.search)
		snap.NoMatches = len(snap.VisibleRows) == 0
	}
	return snap
}
