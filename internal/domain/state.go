package domain

// MigrationState records an in-flight migration between two data directories.
// It is persisted through the preference store by the essential-files phase
// and consumed by the user-data phase.
type MigrationState struct {
	// Source is the legacy directory with the remaining files to move
	Source string `json:"source"`

	// Destination is the directory which now holds the active collection
	Destination string `json:"destination"`
}

// InProgress returns true if a user-data migration still has to run
func (s MigrationState) InProgress() bool {
	return s.Source != "" && s.Destination != ""
}

// Phase identifies which half of the migration a run belongs to
type Phase string

const (
	PhaseEssential Phase = "essential"
	PhaseUserData  Phase = "userdata"
)

// IsValid checks if the phase is a known value
func (p Phase) IsValid() bool {
	switch p {
	case PhaseEssential, PhaseUserData:
		return true
	}
	return false
}
