// Package web provides the HTTP surface over the automation engine: the
// audit trail readers and the authoring-time definition validator.
package web

import "github.com/practiq/automata/pkg/models"

// ListTriggersResponse wraps a tenant's trigger list.
type ListTriggersResponse struct {
	Triggers []*models.Trigger `json:"triggers"`
	Count    int               `json:"count"`
}

// ListTriggerEventsResponse wraps the firing history of one trigger, newest
// first.
type ListTriggerEventsResponse struct {
	TriggerID string                 `json:"trigger_id"`
	Events    []*models.TriggerEvent `json:"events"`
	Count     int                    `json:"count"`
}

// ValidateTriggerResponse reports the definition-time checks for a trigger
// body without storing anything.
type ValidateTriggerResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}
