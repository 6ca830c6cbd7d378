package quotes

import (
	"fmt"

	"github.com/comercia/comercia/internal/shared"
)

// Action is an operation applied to a quote.
type Action string

const (
	ActionSend      Action = "send"
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionReopen    Action = "reopen"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionDuplicate Action = "duplicate"
)

// transitions is the single source of truth for what each state allows.
// Edit and delete keep the status; duplicate is legal everywhere and yields
// a new draft.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionSend:   StatusSent,
		ActionEdit:   StatusDraft,
		ActionDelete: StatusDraft,
	},
	StatusSent: {
		ActionAccept: StatusAccepted,
		ActionReject: StatusRejected,
	},
	StatusRejected: {
		ActionReopen: StatusSent,
		ActionDelete: StatusRejected,
	},
	StatusAccepted: {},
}

// Transition returns the status reached by applying action in from.
func Transition(from Status, action Action) (Status, error) {
	if action == ActionDuplicate {
		if _, ok := transitions[from]; ok {
			return StatusDraft, nil
		}
	}
	allowed, ok := transitions[from]
	if !ok {
		return "", shared.Validation("unknown quote status %q", from)
	}
	to, ok := allowed[action]
	if !ok {
		return "", shared.Conflict(fmt.Sprintf("cannot %s a quote in status %s", action, from), "")
	}
	return to, nil
}

// Editable reports whether items, rubros and header fields may change.
func (q Quote) Editable() bool {
	_, err := Transition(q.Status, ActionEdit)
	return err == nil
}
