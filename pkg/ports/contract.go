package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReportStoreContract runs a suite of tests to verify that a ReportStore implementation
// adheres to the defined interface contract.
func RunReportStoreContract(t *testing.T, store ReportStore) {
	ctx := context.Background()
	reportID := "contract-test-report-" + time.Now().Format("20060102150405")

	newReport := func(id string) *domain.Report {
		started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		return &domain.Report{
			RunID:      id,
			Plan:       "contract",
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
			Root: &domain.Result{
				NodeID: "root",
				Kind:   domain.KindContainer,
				Status: domain.StateSuccessful,
				Children: []*domain.Result{{
					NodeID: "sum",
					Kind:   domain.KindTemplate,
					Status: domain.StateSuccessful,
					Invocations: []domain.InvocationResult{
						{Index: 1, DisplayName: "[1] 1, 2", Status: domain.StateSuccessful, Duration: time.Millisecond},
						{Index: 2, DisplayName: "[2] 2, 2", Status: domain.StateFailed, Error: "assertion failed"},
					},
				}},
			},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		report := newReport(reportID)
		require.NoError(t, store.Save(ctx, reportID, report), "Save should not return error")

		loaded, err := store.Load(ctx, reportID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, report.RunID, loaded.RunID)
		assert.True(t, report.StartedAt.Equal(loaded.StartedAt))
		require.NotNil(t, loaded.Root.Find("sum"))
		assert.Equal(t, report.Root.Find("sum").Invocations, loaded.Root.Find("sum").Invocations)
		assert.Equal(t, report.Summary(), loaded.Summary())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+reportID)
		assert.ErrorIs(t, err, domain.ErrReportNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, reportID, newReport(reportID)))

		require.NoError(t, store.Delete(ctx, reportID), "Delete should not return error")

		_, err := store.Load(ctx, reportID)
		assert.ErrorIs(t, err, domain.ErrReportNotFound, "Load after Delete should return ErrReportNotFound")
		assert.NoError(t, store.Delete(ctx, reportID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := reportID + "-1"
		id2 := reportID + "-2"
		require.NoError(t, store.Save(ctx, id1, newReport(id1)))
		require.NoError(t, store.Save(ctx, id2, newReport(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
