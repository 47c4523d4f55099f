// Package bus defines the inter-node event-propagation contract.
// Every mutating admin operation applies to local state first, then
// publishes an Event so peer nodes converge; delivery is at-least-once and
// ordered only within a single project.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"cedrus/internal/model"
)

// EventType enumerates every mutation the admin controller can publish.
type EventType uint8

const (
	EventInvalid EventType = iota
	EventReloadAll
	EventProjectCreate
	EventProjectUpdate
	EventProjectRemove
	EventProjectPutIdentitySource
	EventProjectRemoveIdentitySource
	EventProjectPutSchema
	EventProjectRemoveSchema
	EventProjectAddEntities
	EventProjectRemoveEntities
	EventProjectAddPolicies
	EventProjectRemovePolicies
	EventProjectAddTemplates
	EventProjectRemoveTemplates
	EventProjectAddTemplateLinks
	EventProjectRemoveTemplateLinks
)

func (t EventType) String() string {
	switch t {
	case EventReloadAll:
		return "reload_all"
	case EventProjectCreate:
		return "project_create"
	case EventProjectUpdate:
		return "project_update"
	case EventProjectRemove:
		return "project_remove"
	case EventProjectPutIdentitySource:
		return "project_put_identity_source"
	case EventProjectRemoveIdentitySource:
		return "project_remove_identity_source"
	case EventProjectPutSchema:
		return "project_put_schema"
	case EventProjectRemoveSchema:
		return "project_remove_schema"
	case EventProjectAddEntities:
		return "project_add_entities"
	case EventProjectRemoveEntities:
		return "project_remove_entities"
	case EventProjectAddPolicies:
		return "project_add_policies"
	case EventProjectRemovePolicies:
		return "project_remove_policies"
	case EventProjectAddTemplates:
		return "project_add_templates"
	case EventProjectRemoveTemplates:
		return "project_remove_templates"
	case EventProjectAddTemplateLinks:
		return "project_add_template_links"
	case EventProjectRemoveTemplateLinks:
		return "project_remove_template_links"
	default:
		return "invalid"
	}
}

func eventTypeFromString(s string) (EventType, error) {
	for t := EventReloadAll; t <= EventProjectRemoveTemplateLinks; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return EventInvalid, fmt.Errorf("bus: unknown event type %q", s)
}

// MarshalJSON renders EventType by name so published payloads stay readable.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the name form produced by MarshalJSON.
func (t *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := eventTypeFromString(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is the envelope broadcast to every other node. ProjectID is empty
// for ReloadAll. SenderID lets a node ignore its own publications when the
// transport loops them back (e.g. a naive Redis Pub/Sub subscription).
type Event struct {
	Type      EventType
	SenderID  string
	ProjectID string

	Project       *model.Project
	IdentitySource *model.IdentitySource
	Schema        *model.Schema
	Entities      []model.Entity
	EntityUids    []model.EntityUid
	Policies      map[string]model.Policy
	PolicyIDs     []string
	Templates     map[string]model.Template
	TemplateIDs   []string
	TemplateLinks []model.TemplateLink
	TemplateLinkIDs []string
}

// PubSub is the transport a node uses to publish and receive Events.
// Implementations guarantee at-least-once delivery; consumers must treat
// ApplyEvent as idempotent.
type PubSub interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe delivers every event published by any node, including this
	// one; callers filter by SenderID when self-delivery must be ignored.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
