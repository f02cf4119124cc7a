package model

import (
	"errors"
	"strings"
	"time"
)

// ErrMalformedRecord marks registry records that cannot be used, such
// as studies without an NCT identifier. Batch loaders skip and count
// these; single-record lookups return it wrapped.
var ErrMalformedRecord = errors.New("malformed trial record")

// Status is a registry overall-status value, normalized to the fixed
// uppercase vocabulary. The loader normalizes defensively; consumers
// should classify through ParseStatus rather than comparing raw strings.
type Status string

const (
	StatusCompleted           Status = "COMPLETED"
	StatusRecruiting          Status = "RECRUITING"
	StatusActiveNotRecruiting Status = "ACTIVE_NOT_RECRUITING"
	StatusNotYetRecruiting    Status = "NOT_YET_RECRUITING"
	StatusEnrollingByInvite   Status = "ENROLLING_BY_INVITATION"
	StatusTerminated          Status = "TERMINATED"
	StatusWithdrawn           Status = "WITHDRAWN"
	StatusSuspended           Status = "SUSPENDED"
	StatusUnknown             Status = "UNKNOWN"
)

// ParseStatus maps a raw status string onto the fixed vocabulary.
// Matching is case-insensitive; empty or unrecognized input is UNKNOWN.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusCompleted:
		return StatusCompleted
	case StatusRecruiting:
		return StatusRecruiting
	case StatusActiveNotRecruiting:
		return StatusActiveNotRecruiting
	case StatusNotYetRecruiting:
		return StatusNotYetRecruiting
	case StatusEnrollingByInvite:
		return StatusEnrollingByInvite
	case StatusTerminated:
		return StatusTerminated
	case StatusWithdrawn:
		return StatusWithdrawn
	case StatusSuspended:
		return StatusSuspended
	default:
		return StatusUnknown
	}
}

// IsOngoing reports whether the status counts toward the ongoing bucket.
// SUSPENDED and UNKNOWN are neither ongoing nor concluded.
func (s Status) IsOngoing() bool {
	switch s {
	case StatusRecruiting, StatusActiveNotRecruiting, StatusNotYetRecruiting, StatusEnrollingByInvite:
		return true
	}
	return false
}

// IsConcluded reports whether the status counts toward the
// completion-ratio denominator.
func (s Status) IsConcluded() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusWithdrawn:
		return true
	}
	return false
}

// PhaseRank maps a registry phase string to a numeric rank used for
// adjacency checks and per-site phase averaging. Combined phases sit
// between their endpoints. Returns 0 and false when the phase is
// missing or unrecognized.
func PhaseRank(phase string) (float64, bool) {
	// Order matters: combined phases contain their component names.
	ranked := []struct {
		name string
		rank float64
	}{
		{"Early Phase 1", 0.5},
		{"Phase 1/Phase 2", 1.5},
		{"Phase 2/Phase 3", 2.5},
		{"Phase 1", 1.0},
		{"Phase 2", 2.0},
		{"Phase 3", 3.0},
		{"Phase 4", 4.0},
	}
	for _, r := range ranked {
		if strings.Contains(strings.ToLower(phase), strings.ToLower(r.name)) {
			return r.rank, true
		}
	}
	return 0, false
}

// LocationRecord is one (facility, city, country) triple attached to a
// trial. Never mutated after ingestion.
type LocationRecord struct {
	Facility      string   `json:"facility"`
	City          string   `json:"city"`
	State         string   `json:"state,omitempty"`
	Country       string   `json:"country"`
	ZipCode       string   `json:"zip_code,omitempty"`
	Investigators []string `json:"investigators,omitempty"`
}

// TrialRecord is one registry study with its locations. Immutable once
// ingested; the pipeline consumes it read-only.
type TrialRecord struct {
	NCTID             string           `json:"nct_id"`
	Title             string           `json:"title,omitempty"`
	Status            Status           `json:"status"`
	StudyType         string           `json:"study_type,omitempty"`
	Phase             string           `json:"phase,omitempty"`
	Conditions        []string         `json:"conditions,omitempty"`
	InterventionTypes []string         `json:"intervention_types,omitempty"`
	Sponsor           string           `json:"sponsor,omitempty"`
	Enrollment        int              `json:"enrollment,omitempty"`
	StartDate         *time.Time       `json:"start_date,omitempty"`
	CompletionDate    *time.Time       `json:"completion_date,omitempty"`
	LastUpdateDate    *time.Time       `json:"last_update_date,omitempty"`
	Locations         []LocationRecord `json:"locations"`
}
