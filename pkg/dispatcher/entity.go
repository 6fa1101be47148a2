package dispatcher

import (
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/models"
)

func entityRef(event *events.EntityChanged) models.EntityRef {
	return models.EntityRef{
		Type: event.EntityType,
		ID:   event.EntityID,
	}
}
