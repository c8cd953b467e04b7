package main

import (
	"errors"

	"github.com/google/uuid"
)

// Status is a notification pushed to every connected UI after an action
// settles, success or failure.
type Status struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

func (h *Hub) sendStatus(statusType, message string) {
	h.send(wsEnvelope{Type: "status", Status: &Status{
		ID:      uuid.NewString(),
		Type:    statusType,
		Message: message,
	}})
}

// statusForError maps the action error taxonomy onto a status type. Local
// rejections are warnings; chain reverts and transport failures are errors.
func statusForError(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case ErrValidation, ErrEligibility:
			return "warning"
		}
	}
	return "error"
}
