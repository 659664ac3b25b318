package booking

import (
	"slices"
	"strings"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

type Op string

const (
	OpCreate   Op = "create"
	OpAssign   Op = "assign"
	OpAccept   Op = "accept"
	OpReject   Op = "reject"
	OpStart    Op = "start"
	OpComplete Op = "complete"
	OpCancel   Op = "cancel"
	OpRate     Op = "rate"
)

// transition describes one status-changing operation and who may perform it.
type transition struct {
	From  []models.Status
	To    models.Status
	Actor models.Role
	Event models.EventType
}

// transitions is the authoritative state machine. Assign and rate do not change status and
// are checked in the service.
var transitions = map[Op]transition{
	OpAccept: {From: []models.Status{models.StatusPending}, To: models.StatusAccepted, Actor: models.RoleMechanic, Event: models.EventAccepted},
	OpReject: {From: []models.Status{models.StatusPending}, To: models.StatusRejected, Actor: models.RoleMechanic, Event: models.EventRejected},
	OpStart:  {From: []models.Status{models.StatusAccepted}, To: models.StatusInProgress, Actor: models.RoleMechanic, Event: models.EventStarted},
	// completing straight from ACCEPTED is allowed for jobs nobody marked as started
	OpComplete: {From: []models.Status{models.StatusInProgress, models.StatusAccepted}, To: models.StatusCompleted, Actor: models.RoleMechanic, Event: models.EventCompleted},
	OpCancel:   {From: []models.Status{models.StatusPending, models.StatusAccepted, models.StatusInProgress}, To: models.StatusCancelled, Actor: models.RoleCustomer, Event: models.EventCancelled},
}

// checkTransition reports a conflict when the booking already sits in the target status
// (the loser of a race) and an illegal transition for any other disallowed source status.
func checkTransition(op Op, b *models.Booking) error {
	t := transitions[op]
	if b.Status == t.To {
		return apperr.Conflict("booking %s is already %s", b.ID, b.Status)
	}
	if !slices.Contains(t.From, b.Status) {
		return apperr.IllegalTransition("cannot %s booking %s in status %s; valid next: %s",
			op, b.ID, b.Status, describeValidFrom(b.Status))
	}
	return nil
}

// ValidNext lists the statuses reachable from s.
func ValidNext(s models.Status) []models.Status {
	var out []models.Status
	for _, op := range []Op{OpAccept, OpReject, OpStart, OpComplete, OpCancel} {
		t := transitions[op]
		if slices.Contains(t.From, s) && !slices.Contains(out, t.To) {
			out = append(out, t.To)
		}
	}
	return out
}

func describeValidFrom(s models.Status) string {
	next := ValidNext(s)
	if len(next) == 0 {
		return "none (terminal state)"
	}
	parts := make([]string, len(next))
	for i, n := range next {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
