package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *LeadStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewLeadStoreWithPool(mock)
	require.NoError(t, err)
	return mock, store
}

func strPtr(s string) *string { return &s }

func TestUpsertReportsInsertedAndUpdated(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	l := lead.FromCandidate(lead.Candidate{
		ExternalID:      "ChIJ1",
		Name:            "Plomería Andina",
		Phone:           "+593 99 123 4567",
		ReviewCount:     8,
		OperatingStatus: lead.OperatingStatusOperating,
	}, lead.SourcePlacesAPI, "plomeros Quito", nil)

	args := []any{
		l.ExternalID, l.BatchID, l.Name, l.Address, l.Phone, l.Website, l.ReviewCount, l.Rating,
		"OPERATING", l.BusinessType, l.MapsURL, "places_api", "plomeros Quito", "NEW",
	}
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	outcome, err := store.Upsert(context.Background(), l)
	require.NoError(t, err)
	require.Equal(t, lead.Inserted, outcome)

	outcome, err = store.Upsert(context.Background(), l)
	require.NoError(t, err)
	require.Equal(t, lead.Updated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPreservesWorkflowColumns(t *testing.T) {
	t.Parallel()

	require.Contains(t, upsertLeadSQL, "ON CONFLICT (external_id) DO UPDATE SET")
	conflict := upsertLeadSQL[strings.Index(upsertLeadSQL, "ON CONFLICT"):]
	for _, col := range []string{"status =", "admin_notes =", "discovered_at =", "batch_id ="} {
		require.NotContains(t, conflict, col)
	}
	require.Contains(t, upsertLeadSQL, "RETURNING (xmax = 0)")
}

func TestUpsertWrapsDatabaseErrors(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	anyArgs := make([]any, 14)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectQuery("INSERT INTO leads").WithArgs(anyArgs...).WillReturnError(errors.New("connection reset"))

	_, err := store.Upsert(context.Background(), lead.Lead{ExternalID: "x", Source: lead.SourceBrowser})
	require.ErrorContains(t, err, "upsert lead x")
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.Upsert(context.Background(), lead.Lead{})
	require.Error(t, err)
}

func TestFindDefaultExcludesRejected(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(`SELECT count\(\*\) FROM leads WHERE status <> \$1`).
		WithArgs("REJECTED").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("REJECTED", 20, 20).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "external_id", "batch_id", "name", "address", "phone", "website", "review_count", "rating",
			"operating_status", "business_type", "maps_url", "source", "source_query", "status", "admin_notes",
			"discovered_at", "updated_at", "country",
		}).AddRow(
			int64(7), "ChIJ1", nil, "Plomería Andina", strPtr("Quito"), strPtr("+593 99 123 4567"), nil, 8, nil,
			"OPERATING", nil, nil, "places_api", "plomeros Quito", "CONTACTED", strPtr("call back"),
			now, now, "Ecuador",
		))

	page, err := store.Find(context.Background(), lead.Filter{Page: 2})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, 21, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Leads, 1)
	got := page.Leads[0]
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, lead.StatusContacted, got.Status)
	require.Equal(t, lead.SourcePlacesAPI, got.Source)
	require.Equal(t, "Ecuador", got.Country)
	require.Equal(t, "call back", *got.AdminNotes)
	require.Nil(t, got.Website)
}

func TestWhereClause(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := whereClause(lead.Filter{
		Query:      "plomero",
		Status:     lead.StatusAll,
		Country:    "ecuador",
		MinReviews: 5,
		From:       &from,
	})
	require.Contains(t, where, "name ILIKE $1")
	require.Contains(t, where, "admin_notes ILIKE $1")
	require.Contains(t, where, "= lower($2)")
	require.Contains(t, where, "review_count >= $3")
	require.Contains(t, where, "discovered_at >= $4")
	require.NotContains(t, where, "status")
	require.Equal(t, []any{"%plomero%", "ecuador", 5, from}, args)

	where, args = whereClause(lead.Filter{Query: `50%_off\`, Status: lead.StatusAll})
	require.Contains(t, where, `name ILIKE $1 ESCAPE '\'`)
	require.Equal(t, []any{`%50\%\_off\\%`}, args)

	where, args = whereClause(lead.Filter{Status: lead.StatusNew})
	require.Equal(t, " WHERE status = $1", where)
	require.Equal(t, []any{"NEW"}, args)

	where, args = whereClause(lead.Filter{Status: lead.StatusAll})
	require.Empty(t, where)
	require.Empty(t, args)
}

func TestDistinctCountries(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT country").
		WithArgs("Other").
		WillReturnRows(pgxmock.NewRows([]string{"country"}).AddRow("Colombia").AddRow("Ecuador"))

	countries, err := store.DistinctCountries(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Colombia", "Ecuador"}, countries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	status := lead.WorkflowStatus("contacted")
	mock.ExpectExec(`UPDATE leads SET status = \$1, admin_notes = \$2, updated_at = now\(\) WHERE id = \$3`).
		WithArgs("CONTACTED", "call back", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE leads SET phone = \$1`).
		WithArgs("+593 99 000 1111", int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Update(context.Background(), 7, lead.Patch{Status: &status, AdminNotes: strPtr("call back")}))
	err := store.Update(context.Background(), 8, lead.Patch{Phone: strPtr("+593 99 000 1111")})
	require.ErrorIs(t, err, lead.ErrNotFound)

	bad := lead.WorkflowStatus("ARCHIVED")
	require.ErrorIs(t, store.Update(context.Background(), 7, lead.Patch{Status: &bad}), lead.ErrInvalidStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmptyPatchChecksExistence(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec(`UPDATE leads SET updated_at = now\(\) WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE leads SET updated_at = now\(\) WHERE id = \$1`).
		WithArgs(int64(999)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Update(context.Background(), 7, lead.Patch{}))
	require.ErrorIs(t, store.Update(context.Background(), 999, lead.Patch{}), lead.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatches(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("INSERT INTO search_batches").
		WithArgs("cerrajeros Cuenca").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("UPDATE search_batches").
		WithArgs(4, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := store.CreateBatch(context.Background(), "cerrajeros Cuenca")
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
	require.NoError(t, store.CompleteBatch(context.Background(), id, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLeadStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStore(context.Background(), LeadStoreConfig{})
	require.Error(t, err)
	_, err = NewLeadStoreWithPool(nil)
	require.Error(t, err)
	_, err = NewLeadStore(context.Background(), LeadStoreConfig{DSN: "postgres://%zz"})
	require.Error(t, err)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Error(t, MigrateUp("", nil))
}
