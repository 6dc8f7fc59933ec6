// Package store persists work logs and pending confirmations and serves the
// reference datasets.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// ReferenceReader lists the reference datasets. Rows with status "deleted"
// are never returned.
type ReferenceReader interface {
	ListFields(ctx context.Context) ([]model.Field, error)
	ListCrops(ctx context.Context) ([]model.Crop, error)
	ListMaterials(ctx context.Context) ([]model.Material, error)
}

// WorkLogWriter commits work logs.
type WorkLogWriter interface {
	SaveWorkLog(ctx context.Context, log *model.WorkLog) error
}

// HistoryReader returns a submitter's most recent work logs, newest first.
type HistoryReader interface {
	RecentWorkLogs(ctx context.Context, submitterID string, limit int) ([]model.WorkLog, error)
}

// ConfirmationStore keeps confirmations awaiting a submitter's answer.
type ConfirmationStore interface {
	SavePendingConfirmation(ctx context.Context, c *model.Confirmation) error
	GetPendingConfirmation(ctx context.Context, id string) (*model.Confirmation, error)
	DeletePendingConfirmation(ctx context.Context, id string) error
}

// WorkLogFilter narrows ListWorkLogs. Zero values match everything.
type WorkLogFilter struct {
	SubmitterID string             `json:"submitter_id,omitempty"`
	Category    model.WorkCategory `json:"work_category,omitempty"`
	From        time.Time          `json:"from,omitempty"`
	To          time.Time          `json:"to,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Offset      int                `json:"offset,omitempty"`
}

// Store is the full persistence boundary.
type Store interface {
	ReferenceReader
	WorkLogWriter
	HistoryReader
	ConfirmationStore

	GetWorkLog(ctx context.Context, logID string) (*model.WorkLog, error)
	ListWorkLogs(ctx context.Context, filter WorkLogFilter) ([]model.WorkLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const dateLayout = "2006-01-02"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type scannable interface {
	Scan(dest ...any) error
}
