package dto

import (
	"time"

	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
)

// ReconciliationRun describes a finished or queued reconciliation.
type ReconciliationRun struct {
	Queued     bool              `json:"queued"`
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Report     *reconcile.Report `json:"report,omitempty"`
}
