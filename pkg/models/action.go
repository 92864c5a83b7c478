package models

// Action is one action-log entry: user did Action to (SubjectType, SubjectID).
type Action struct {
	Core
	User        int64
	SubjectType string
	SubjectID   int64
	Action      string
}

func (*Action) EntityType() string { return EntityTypeAction }

// NewAction creates an unpersisted action-log entry.
func NewAction(name string, user int64, subjectType string, subjectID int64, action string) *Action {
	return &Action{
		Core:        Core{Name: name},
		User:        user,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
	}
}
