package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 合法的 (动作, 起始状态) 组合，其余全部拒绝
var allowedTransitions = map[EventAction]map[EventStatus]EventStatus{
	ActionSubmit:             {EventDraft: EventPendingCoordinator, EventRejected: EventPendingCoordinator},
	ActionCoordinatorApprove: {EventPendingCoordinator: EventApproved},
	ActionAdminApprove:       {EventPendingAdmin: EventApproved},
	ActionReject:             {EventPendingCoordinator: EventRejected, EventPendingAdmin: EventRejected},
	ActionPublish:            {EventApproved: EventPublished},
	ActionStart:              {EventPublished: EventOngoing},
	ActionComplete:           {EventOngoing: EventCompleted, EventIncomplete: EventCompleted},
	ActionMarkIncomplete:     {EventOngoing: EventIncomplete},
	ActionCancel:             cancelledFrom(EventDraft, EventPendingCoordinator, EventPendingAdmin, EventApproved, EventPublished),
}

func cancelledFrom(froms ...EventStatus) map[EventStatus]EventStatus {
	out := make(map[EventStatus]EventStatus, len(froms))
	for _, f := range froms {
		out[f] = EventCancelled
	}
	return out
}

func TestEventAction_CanApplyCoversEveryPair(t *testing.T) {
	assert.Len(t, eventTransitions, len(allowedTransitions))
	for action, froms := range allowedTransitions {
		assert.True(t, action.Valid(), "action %s", action)
		for _, from := range EventStatuses {
			to, ok := froms[from]
			assert.Equal(t, ok, action.CanApply(from), "%s from %s", action, from)
			if ok {
				assert.Equal(t, to, action.NextStatus(false), "%s from %s", action, from)
			}
		}
	}
	assert.False(t, EventAction("archive").Valid())
	assert.False(t, EventAction("archive").CanApply(EventDraft))
}

func TestEventAction_TerminalStatusesAcceptNothing(t *testing.T) {
	for _, from := range []EventStatus{EventCompleted, EventCancelled} {
		for action := range eventTransitions {
			assert.False(t, action.CanApply(from), "%s from %s", action, from)
		}
	}
}

func TestEventAction_CoordinatorApproveRoutesByBudget(t *testing.T) {
	assert.Equal(t, EventPendingAdmin, ActionCoordinatorApprove.NextStatus(true))
	assert.Equal(t, EventApproved, ActionCoordinatorApprove.NextStatus(false))
	assert.Equal(t, EventApproved, ActionAdminApprove.NextStatus(true))
}

func TestEvent_NeedsAdminApproval(t *testing.T) {
	assert.False(t, (&Event{Budget: 5000}).NeedsAdminApproval(5000))
	assert.True(t, (&Event{Budget: 5000.01}).NeedsAdminApproval(5000))
	assert.True(t, (&Event{GuestSpeakers: StringList{"Dr. Rao"}}).NeedsAdminApproval(5000))
}
