package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MirrorRun is the persisted summary of one mirror run.
type MirrorRun struct {
	ID              uuid.UUID       `json:"id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Strategy        string          `json:"strategy"`
	DryRun          bool            `json:"dry_run"`
	TablesChecked   int             `json:"tables_checked"`
	TablesSynced    int             `json:"tables_synced"`
	RowsWritten     int64           `json:"rows_written"`
	RowFailures     int64           `json:"row_failures"`
	MatchPercentage float64         `json:"match_percentage"`
	Report          json.RawMessage `json:"report,omitempty"`
}
