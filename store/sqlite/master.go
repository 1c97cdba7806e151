/*
master.go - SQLite-backed master store for shared reference data

PURPOSE:
  Implements finance.MasterStore: effective-dated rate schedules, the chart of
  accounts, vendors, and approval chain templates. One master.db shared by all
  incidents.

RATE IMMUTABILITY:
  rate_schedules is insert-only. SaveRateSchedule checks the new window against
  every existing window for the same (kind, subject) inside a transaction and
  rejects overlaps, so the resolver can rely on at most one row covering any
  date.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/incident-finance/finance"
)

// MasterStore implements finance.MasterStore on one SQLite file.
type MasterStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenMaster opens (creating schema if absent) the shared master store.
func OpenMaster(dbPath string) (*MasterStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection also keeps
	// ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	store := &MasterStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *MasterStore) Close() error {
	return s.db.Close()
}

func (s *MasterStore) migrate() error {
	schema := `
	-- Insert-only. Corrections are new dated rows.
	CREATE TABLE IF NOT EXISTS rate_schedules (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		rate_per_hour TEXT NOT NULL,
		overtime_multiplier TEXT NOT NULL,
		rate_per_day TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rates_subject ON rate_schedules(kind, subject);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT
	);

	CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT,
		payment_terms TEXT
	);

	CREATE TABLE IF NOT EXISTS chain_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		steps TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RATE SCHEDULES
// =============================================================================

// SaveRateSchedule inserts a new rate row after verifying its window does not
// overlap any existing window for the same (kind, subject).
func (s *MasterStore) SaveRateSchedule(ctx context.Context, r finance.RateSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := rateSchedulesFor(ctx, tx, r.Kind, r.Subject)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if r.Overlaps(other) {
			return &finance.ValidationError{
				Field:   "effective_from",
				Message: fmt.Sprintf("window overlaps existing rate %s for %s/%s", other.ID, r.Kind, r.Subject),
			}
		}
	}

	var effectiveTo sql.NullString
	if r.EffectiveTo != nil {
		effectiveTo = sql.NullString{String: r.EffectiveTo.String(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_schedules
		(id, kind, subject, rate_per_hour, overtime_multiplier, rate_per_day, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Subject, r.RatePerHour.String(), r.OvertimeMultiplier.String(),
		r.RatePerDay.String(), r.EffectiveFrom.String(), effectiveTo,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RateSchedulesFor returns all rate rows for a subject key, ordered by
// EffectiveFrom.
func (s *MasterStore) RateSchedulesFor(ctx context.Context, kind finance.RateKind, subject string) ([]finance.RateSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rateSchedulesFor(ctx, s.db, kind, subject)
}

func rateSchedulesFor(ctx context.Context, q dbtx, kind finance.RateKind, subject string) ([]finance.RateSchedule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, kind, subject, rate_per_hour, overtime_multiplier, rate_per_day,
		       effective_from, effective_to
		FROM rate_schedules
		WHERE kind = ? AND subject = ?
		ORDER BY effective_from ASC`, kind, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []finance.RateSchedule
	for rows.Next() {
		var (
			r                       finance.RateSchedule
			perHour, otMult, perDay string
			from                    string
			to                      sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.Subject, &perHour, &otMult, &perDay, &from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan rate schedule: %w", err)
		}
		r.RatePerHour = finance.MustDecimal(perHour)
		r.OvertimeMultiplier = finance.MustDecimal(otMult)
		r.RatePerDay = finance.MustDecimal(perDay)
		r.EffectiveFrom, _ = finance.ParseDate(from)
		if to.Valid {
			d, err := finance.ParseDate(to.String)
			if err == nil {
				r.EffectiveTo = &d
			}
		}
		schedules = append(schedules, r)
	}
	return schedules, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *MasterStore) SaveAccount(ctx context.Context, a finance.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, code, name, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category`,
		a.ID, a.Code, a.Name, a.Category,
	)
	if isUniqueConstraintError(err) {
		return &finance.ValidationError{Field: "code", Message: fmt.Sprintf("account code %q already exists", a.Code)}
	}
	return err
}

func (s *MasterStore) GetAccount(ctx context.Context, id string) (*finance.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a        finance.Account
		category sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, category FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Code, &a.Name, &category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Category = category.String
	return &a, nil
}

func (s *MasterStore) ListAccounts(ctx context.Context) ([]finance.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, name, category FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []finance.Account
	for rows.Next() {
		var (
			a        finance.Account
			category sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &category); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Category = category.String
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// VENDORS
// =============================================================================

func (s *MasterStore) SaveVendor(ctx context.Context, v finance.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, contact_email, payment_terms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			contact_email = excluded.contact_email,
			payment_terms = excluded.payment_terms`,
		v.ID, v.Name, v.ContactEmail, v.PaymentTerms,
	)
	return err
}

func (s *MasterStore) GetVendor(ctx context.Context, id string) (*finance.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		v            finance.Vendor
		email, terms sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, contact_email, payment_terms FROM vendors WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &email, &terms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.ContactEmail = email.String
	v.PaymentTerms = terms.String
	return &v, nil
}

func (s *MasterStore) ListVendors(ctx context.Context) ([]finance.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, contact_email, payment_terms FROM vendors ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []finance.Vendor
	for rows.Next() {
		var (
			v            finance.Vendor
			email, terms sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Name, &email, &terms); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		v.ContactEmail = email.String
		v.PaymentTerms = terms.String
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// =============================================================================
// CHAIN TEMPLATES
// =============================================================================

// Steps are stored as a JSON array to keep the ordered list in one row.

func (s *MasterStore) SaveChainTemplate(ctx context.Context, t finance.ChainTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode chain steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chain_templates (id, name, steps)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			steps = excluded.steps`,
		t.ID, t.Name, string(steps),
	)
	return err
}

func (s *MasterStore) GetChainTemplate(ctx context.Context, id string) (*finance.ChainTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t     finance.ChainTemplate
		steps string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, steps FROM chain_templates WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &steps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode chain steps: %w", err)
	}
	return &t, nil
}

func (s *MasterStore) ListChainTemplates(ctx context.Context) ([]finance.ChainTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, steps FROM chain_templates ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []finance.ChainTemplate
	for rows.Next() {
		var (
			t     finance.ChainTemplate
			steps string
		)
		if err := rows.Scan(&t.ID, &t.Name, &steps); err != nil {
			return nil, fmt.Errorf("failed to scan chain template: %w", err)
		}
		if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode chain steps: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
