package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// ReportStore defines the interface for persisting run reports.
type ReportStore interface {
	// Save persists the report under the given ID, replacing any previous one.
	Save(ctx context.Context, id string, report *domain.Report) error

	// Load retrieves a report.
	// Returns domain.ErrReportNotFound if the report does not exist.
	Load(ctx context.Context, id string) (*domain.Report, error)

	// Delete removes a report. Deleting a missing report is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of every stored report.
	List(ctx context.Context) ([]string, error)
}
