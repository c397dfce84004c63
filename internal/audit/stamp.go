package audit

import "time"

// EntityState classifies a pending change the way the persistence boundary
// sees it.
type EntityState int

const (
	StateUnchanged EntityState = iota
	StateAdded
	StateModified
)

// Provenance holds the four who/when fields carried by every auditable
// record. Created fields are written exactly once, at insert; updated fields
// on every subsequent modification. The stamper is the sole writer; domain
// code embeds the struct and otherwise leaves it alone.
type Provenance struct {
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// ProvenanceRef makes any struct embedding Provenance an Auditable.
func (p *Provenance) ProvenanceRef() *Provenance { return p }

// Auditable is implemented by entities that carry provenance fields.
type Auditable interface {
	ProvenanceRef() *Provenance
}

// Stamp populates provenance on the pending changes and returns the same
// slice. It is pure over its inputs: no I/O, no clock reads. With an empty
// actorID the fields are left unset, never filled with a placeholder, and
// the changes still commit; a missing actor degrades observability, not
// availability.
func Stamp(changes []Change, actorID string, now time.Time) []Change {
	if actorID == "" {
		return changes
	}
	for _, c := range changes {
		entity, ok := c.Entity.(Auditable)
		if !ok {
			continue
		}
		p := entity.ProvenanceRef()
		switch c.State {
		case StateAdded:
			if p.CreatedAt.IsZero() {
				p.CreatedBy = actorID
				p.CreatedAt = now
			}
		case StateModified:
			p.UpdatedBy = actorID
			p.UpdatedAt = now
		}
	}
	return changes
}
