package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestPassenger_ActivateDeactivate(t *testing.T) {
	p := NewPassenger(uuid.New())
	tripID := uuid.New()

	if err := p.Activate(tripID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if p.Status.Kind != PassengerActive || p.Status.TripID != tripID {
		t.Fatalf("expected Active{%s}, got %+v", tripID, p.Status)
	}

	if err := p.Activate(uuid.New()); err != ErrInvalidInvocation {
		t.Errorf("double Activate: expected ErrInvalidInvocation, got %v", err)
	}

	if err := p.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if p.Status.Kind != PassengerInactive {
		t.Fatalf("expected Inactive, got %s", p.Status.Kind)
	}

	if err := p.Deactivate(); err != ErrInvalidInvocation {
		t.Errorf("double Deactivate: expected ErrInvalidInvocation, got %v", err)
	}
}
