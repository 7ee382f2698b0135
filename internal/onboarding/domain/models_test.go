package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusGraphIsForwardOnly(t *testing.T) {
	assert.True(t, StatusInitiated.CanTransitionTo(StatusInvitationSent))
	assert.True(t, StatusInitiated.CanTransitionTo(StatusIdentityCreated))
	assert.True(t, StatusInvitationSent.CanTransitionTo(StatusIdentityCreated))
	assert.True(t, StatusIdentityCreated.CanTransitionTo(StatusProfileCreated))
	assert.True(t, StatusProfileCreated.CanTransitionTo(StatusCompleted))

	assert.False(t, StatusIdentityCreated.CanTransitionTo(StatusInvitationSent))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusInitiated))
	assert.False(t, StatusInvitationSent.CanTransitionTo(StatusCompleted))
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	targets := []InvitationStatus{
		StatusInitiated, StatusInvitationSent, StatusIdentityCreated,
		StatusProfileCreated, StatusCompleted, StatusFailed, StatusCancelled,
	}
	for _, terminal := range []InvitationStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		for _, target := range targets {
			assert.False(t, terminal.CanTransitionTo(target), "%s -> %s", terminal, target)
		}
	}
}

func TestCancelReachableFromEveryActiveStatus(t *testing.T) {
	for _, status := range ActiveStatuses() {
		assert.True(t, status.CanTransitionTo(StatusCancelled), "%s", status)
		assert.True(t, status.CanTransitionTo(StatusFailed), "%s", status)
	}
}

func TestIsExpiredIsDerived(t *testing.T) {
	expiry := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	inv := Invitation{ExpiresAt: expiry}

	assert.False(t, inv.IsExpired(expiry.Add(-time.Second)))
	assert.False(t, inv.IsExpired(expiry))
	assert.True(t, inv.IsExpired(expiry.Add(time.Second)))
}
