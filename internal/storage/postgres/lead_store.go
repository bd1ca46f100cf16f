// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// LeadStoreConfig controls the Postgres connection pool used for lead rows.
type LeadStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// LeadStore implements lead.Store on top of Postgres.
type LeadStore struct {
	pool pool
}

// NewLeadStore creates a Postgres-backed LeadStore using the provided config.
func NewLeadStore(ctx context.Context, cfg LeadStoreConfig) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{pool: p}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(p pool) (*LeadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LeadStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *LeadStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Rediscovery refreshes only the descriptive columns. Workflow columns
// (status, admin_notes, discovered_at, batch_id) belong to the admin side.
const upsertLeadSQL = `
INSERT INTO leads (
	external_id,
	batch_id,
	name,
	address,
	phone,
	website,
	review_count,
	rating,
	operating_status,
	business_type,
	maps_url,
	source,
	source_query,
	status
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (external_id) DO UPDATE SET
	name = COALESCE(NULLIF(EXCLUDED.name, ''), leads.name),
	address = COALESCE(EXCLUDED.address, leads.address),
	phone = COALESCE(EXCLUDED.phone, leads.phone),
	rating = COALESCE(EXCLUDED.rating, leads.rating),
	review_count = EXCLUDED.review_count,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

// Upsert inserts l or refreshes the existing row with the same external id.
func (s *LeadStore) Upsert(ctx context.Context, l lead.Lead) (lead.UpsertOutcome, error) {
	if strings.TrimSpace(l.ExternalID) == "" {
		return "", fmt.Errorf("external id is required")
	}
	status := l.Status
	if status == "" {
		status = lead.StatusNew
	}
	operating := l.OperatingStatus
	if operating == "" {
		operating = lead.OperatingStatusUnknown
	}
	var inserted bool
	err := s.pool.QueryRow(ctx, upsertLeadSQL,
		l.ExternalID,
		l.BatchID,
		l.Name,
		l.Address,
		l.Phone,
		l.Website,
		l.ReviewCount,
		l.Rating,
		string(operating),
		l.BusinessType,
		l.MapsURL,
		string(l.Source),
		l.SourceQuery,
		string(status),
	).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("upsert lead %s: %w", l.ExternalID, err)
	}
	if inserted {
		return lead.Inserted, nil
	}
	return lead.Updated, nil
}

var countryExpr = lead.CountrySQL("phone")

const leadColumns = `id, external_id, batch_id, name, address, phone, website, review_count, rating,
	operating_status, business_type, maps_url, source, source_query, status, admin_notes,
	discovered_at, updated_at`

// Find returns one page of leads matching f, newest first.
func (s *LeadStore) Find(ctx context.Context, f lead.Filter) (lead.Page, error) {
	f = f.Normalize()
	where, args := whereClause(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM leads"+where, args...).Scan(&total); err != nil {
		return lead.Page{}, fmt.Errorf("count leads: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s, %s AS country FROM leads%s ORDER BY discovered_at DESC, id DESC LIMIT $%d OFFSET $%d",
		leadColumns, countryExpr, where, n+1, n+2)
	rows, err := s.pool.Query(ctx, query, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return lead.Page{}, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]lead.Lead, 0, f.PageSize)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return lead.Page{}, err
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return lead.Page{}, fmt.Errorf("iterate leads: %w", err)
	}
	return lead.NewPage(leads, total, f), nil
}

// likeEscaper makes free-text queries match literally under ILIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func whereClause(f lead.Filter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Status {
	case "":
		conds = append(conds, "status <> "+arg(string(lead.StatusRejected)))
	case lead.StatusAll:
	default:
		conds = append(conds, "status = "+arg(string(f.Status)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + likeEscaper.Replace(q) + "%")
		conds = append(conds, fmt.Sprintf(
			`(name ILIKE %[1]s ESCAPE '\' OR address ILIKE %[1]s ESCAPE '\' OR phone ILIKE %[1]s ESCAPE '\' `+
				`OR source_query ILIKE %[1]s ESCAPE '\' OR admin_notes ILIKE %[1]s ESCAPE '\')`, p))
	}
	if f.Country != "" {
		conds = append(conds, fmt.Sprintf("lower(%s) = lower(%s)", countryExpr, arg(f.Country)))
	}
	if f.MinReviews > 0 {
		conds = append(conds, "review_count >= "+arg(f.MinReviews))
	}
	if f.From != nil {
		conds = append(conds, "discovered_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "discovered_at <= "+arg(*f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanLead(rows pgx.Rows) (lead.Lead, error) {
	var l lead.Lead
	var operating, source, status, country string
	err := rows.Scan(
		&l.ID,
		&l.ExternalID,
		&l.BatchID,
		&l.Name,
		&l.Address,
		&l.Phone,
		&l.Website,
		&l.ReviewCount,
		&l.Rating,
		&operating,
		&l.BusinessType,
		&l.MapsURL,
		&source,
		&l.SourceQuery,
		&status,
		&l.AdminNotes,
		&l.DiscoveredAt,
		&l.UpdatedAt,
		&country,
	)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	l.OperatingStatus = lead.OperatingStatus(operating)
	l.Source = lead.Source(source)
	l.Status = lead.WorkflowStatus(status)
	l.Country = country
	return l, nil
}

// DistinctCountries lists the classified countries present, excluding lead.CountryOther.
func (s *LeadStore) DistinctCountries(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT country FROM (SELECT %s AS country FROM leads WHERE phone IS NOT NULL) c WHERE country <> $1 ORDER BY country",
		countryExpr)
	rows, err := s.pool.Query(ctx, query, lead.CountryOther)
	if err != nil {
		return nil, fmt.Errorf("query countries: %w", err)
	}
	defer rows.Close()

	countries := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}
	return countries, nil
}

// Update applies an admin patch to the lead with the given id.
func (s *LeadStore) Update(ctx context.Context, id int64, p lead.Patch) error {
	var sets []string
	var args []any
	if p.Status != nil {
		status, ok := lead.ParseWorkflowStatus(string(*p.Status))
		if !ok {
			return fmt.Errorf("%w: %q", lead.ErrInvalidStatus, *p.Status)
		}
		args = append(args, string(status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.AdminNotes != nil {
		args = append(args, *p.AdminNotes)
		sets = append(sets, fmt.Sprintf("admin_notes = $%d", len(args)))
	}
	if p.Phone != nil {
		args = append(args, *p.Phone)
		sets = append(sets, fmt.Sprintf("phone = $%d", len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update lead %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return lead.ErrNotFound
	}
	return nil
}

// CreateBatch opens a search batch and returns its id.
func (s *LeadStore) CreateBatch(ctx context.Context, queryText string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO search_batches (query_text) VALUES ($1) RETURNING id", queryText).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	return id, nil
}

// CompleteBatch records the final result count of a batch.
func (s *LeadStore) CompleteBatch(ctx context.Context, id int64, resultCount int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE search_batches SET result_count = $1, completed_at = now() WHERE id = $2", resultCount, id)
	if err != nil {
		return fmt.Errorf("complete batch %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return lead.ErrNotFound
	}
	return nil
}
