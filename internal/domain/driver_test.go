package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestDriver_Lifecycle(t *testing.T) {
	d := NewDriver(uuid.New())
	if d.IsAvailable() {
		t.Fatal("new driver should not be available")
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.IsAvailable() {
		t.Fatal("expected available after Start")
	}

	tripID := uuid.New()
	if err := d.Request(tripID); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if d.Status.Kind != DriverRequested || d.Status.TripID != tripID {
		t.Fatalf("expected Requested{%s}, got %+v", tripID, d.Status)
	}

	if err := d.Assign(); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Status.Kind != DriverAssigned || d.Status.TripID != tripID {
		t.Fatalf("expected Assigned{%s}, got %+v", tripID, d.Status)
	}

	d.Free()
	if d.Status.Kind != DriverAvailable {
		t.Fatalf("expected Available after Free, got %s", d.Status.Kind)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Status.Kind != DriverInactive {
		t.Fatalf("expected Inactive after Stop, got %s", d.Status.Kind)
	}
}

func TestDriver_Free_IsIdempotent(t *testing.T) {
	d := NewDriver(uuid.New())
	d.Free()
	if d.Status.Kind != DriverInactive {
		t.Fatalf("Free on an inactive driver should be a no-op, got %s", d.Status.Kind)
	}
}

func TestDriver_GuardsRejectWrongState(t *testing.T) {
	d := NewDriver(uuid.New())
	if err := d.Assign(); err != ErrInvalidInvocation {
		t.Errorf("Assign from Inactive: expected ErrInvalidInvocation, got %v", err)
	}
	if err := d.Stop(); err != ErrInvalidInvocation {
		t.Errorf("Stop from Inactive: expected ErrInvalidInvocation, got %v", err)
	}
	if err := d.Request(uuid.New()); err != ErrInvalidInvocation {
		t.Errorf("Request from Inactive: expected ErrInvalidInvocation, got %v", err)
	}
}
