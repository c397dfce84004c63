package care

import (
	"time"

	"careportal.org/internal/audit"
)

// Care level buckets used for scheduling and billing.
const (
	CareLevelLow       = "low"
	CareLevelMedium    = "medium"
	CareLevelHigh      = "high"
	CareLevelIntensive = "intensive"
)

const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// Incident severities.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// Client is a person receiving care. Provenance is written by the audit
// stamper at commit time, never by domain code.
type Client struct {
	ID        string
	FullName  string
	CareLevel string
	Status    string

	audit.Provenance
}

// Incident records a reportable event concerning a client.
type Incident struct {
	ID         string
	ClientID   string
	Summary    string
	Severity   string
	OccurredAt time.Time

	audit.Provenance
}
