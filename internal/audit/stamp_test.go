package audit

import (
	"testing"
	"time"
)

type stampedEntity struct {
	Name string
	Provenance
}

func TestStampSetsCreatedFieldsOnce(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entity := &stampedEntity{Name: "client"}

	Stamp([]Change{{Table: "clients", State: StateAdded, Entity: entity}}, "staff-42", t0)
	if entity.CreatedBy != "staff-42" || !entity.CreatedAt.Equal(t0) {
		t.Fatalf("created fields not stamped: %+v", entity.Provenance)
	}
	if entity.UpdatedBy != "" || !entity.UpdatedAt.IsZero() {
		t.Fatalf("updated fields stamped on insert: %+v", entity.Provenance)
	}

	// A second insert-stamp (e.g. a retried commit) must not move creation.
	t1 := t0.Add(time.Hour)
	Stamp([]Change{{Table: "clients", State: StateAdded, Entity: entity}}, "admin-1", t1)
	if entity.CreatedBy != "staff-42" || !entity.CreatedAt.Equal(t0) {
		t.Fatalf("created fields were overwritten: %+v", entity.Provenance)
	}
}

func TestStampRefreshesUpdatedFieldsEachTime(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entity := &stampedEntity{Name: "client"}
	Stamp([]Change{{Table: "clients", State: StateAdded, Entity: entity}}, "staff-42", t0)

	t1 := t0.Add(time.Hour)
	Stamp([]Change{{Table: "clients", State: StateModified, Entity: entity}}, "admin-1", t1)
	if entity.UpdatedBy != "admin-1" || !entity.UpdatedAt.Equal(t1) {
		t.Fatalf("updated fields not stamped: %+v", entity.Provenance)
	}
	if entity.CreatedBy != "staff-42" || !entity.CreatedAt.Equal(t0) {
		t.Fatalf("created fields disturbed by a modification: %+v", entity.Provenance)
	}

	t2 := t1.Add(time.Hour)
	Stamp([]Change{{Table: "clients", State: StateModified, Entity: entity}}, "staff-42", t2)
	if entity.UpdatedBy != "staff-42" || !entity.UpdatedAt.Equal(t2) {
		t.Fatalf("second modification not stamped: %+v", entity.Provenance)
	}
}

func TestStampWithoutActorLeavesFieldsUnset(t *testing.T) {
	entity := &stampedEntity{Name: "client"}
	changes := []Change{{Table: "clients", State: StateAdded, Entity: entity}}

	got := Stamp(changes, "", time.Now())
	if len(got) != 1 {
		t.Fatalf("changes were dropped: %d", len(got))
	}
	if entity.CreatedBy != "" || !entity.CreatedAt.IsZero() {
		t.Fatalf("expected unset provenance, got %+v", entity.Provenance)
	}
}

func TestStampSkipsNonAuditableAndUnchanged(t *testing.T) {
	plain := &struct{ Name string }{Name: "no provenance"}
	entity := &stampedEntity{Name: "client"}

	Stamp([]Change{
		{Table: "plain", State: StateAdded, Entity: plain},
		{Table: "clients", State: StateUnchanged, Entity: entity},
	}, "staff-42", time.Now())

	if entity.CreatedBy != "" || entity.UpdatedBy != "" {
		t.Fatalf("unchanged entity was stamped: %+v", entity.Provenance)
	}
}
