package scheduler

import "github.com/practiq/automata/pkg/models"

// scheduleEntity is the audit entity reference for a schedule-mode firing:
// the trigger itself, since no entity change caused it.
func scheduleEntity(trigger *models.Trigger) models.EntityRef {
	return models.EntityRef{
		Type: "trigger",
		ID:   trigger.ID,
	}
}
