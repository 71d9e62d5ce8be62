package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/vouchermacro/macro"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed Store. The schema comes from
// the migrations directory.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetTemplate returns the template stored under name.
func (s *PostgresStore) GetTemplate(ctx context.Context, name string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM templates WHERE name = $1
	`, name).Scan(&content)

	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("template %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get template: %w", err)
	}
	return content, nil
}

// PutTemplate replaces the template stored under name.
func (s *PostgresStore) PutTemplate(ctx context.Context, name, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (name, content, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
	`, name, content, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store template: %w", err)
	}
	return nil
}

// Fragments returns the whole fragment library.
func (s *PostgresStore) Fragments(ctx context.Context) (macro.FragmentSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, idx, content FROM fragments
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	set := make(macro.FragmentSet)
	for rows.Next() {
		var (
			kind    string
			index   int
			content string
		)
		if err := rows.Scan(&kind, &index, &content); err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		set[macro.FragmentKey{Kind: macro.FragmentKind(kind), Index: index}] = content
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fragments: %w", err)
	}
	return set, nil
}

// PutFragment replaces one snippet of the fragment library.
func (s *PostgresStore) PutFragment(ctx context.Context, kind macro.FragmentKind, index int, content string) error {
	if err := checkFragmentIndex(index); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fragments (kind, idx, content, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, idx) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
	`, string(kind), index, content, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store fragment: %w", err)
	}
	return nil
}

// UpsertBusiness creates or updates a business.
func (s *PostgresStore) UpsertBusiness(ctx context.Context, b *Business) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO businesses (name, identity, policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE
		SET identity = EXCLUDED.identity, policy = EXCLUDED.policy, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, b.Name, b.Identity, b.Policy, now).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert business: %w", err)
	}
	return nil
}

// GetBusiness retrieves a business by name.
func (s *PostgresStore) GetBusiness(ctx context.Context, name string) (*Business, error) {
	var b Business
	err := s.db.QueryRowContext(ctx, `
		SELECT name, identity, policy, created_at, updated_at
		FROM businesses
		WHERE name = $1
	`, name).Scan(&b.Name, &b.Identity, &b.Policy, &b.CreatedAt, &b.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("business %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return &b, nil
}

// ListBusinesses returns all businesses ordered by name.
func (s *PostgresStore) ListBusinesses(ctx context.Context) ([]*Business, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, identity, policy, created_at, updated_at
		FROM businesses
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var list []*Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.Name, &b.Identity, &b.Policy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		list = append(list, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating businesses: %w", err)
	}
	return list, nil
}

// DeleteBusiness removes a business. Ledgers and artifacts cascade.
func (s *PostgresStore) DeleteBusiness(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM businesses WHERE name = $1
	`, name)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("business %s: %w", name, ErrNotFound)
	}
	return nil
}

// EnsureLedger returns the existing ledger or creates one.
func (s *PostgresStore) EnsureLedger(ctx context.Context, business string, denomination int) (*Ledger, error) {
	if denomination <= 0 {
		return nil, fmt.Errorf("%w: denomination %d must be positive", macro.ErrInvalidInput, denomination)
	}
	if err := s.businessExists(ctx, business); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgers (business, denomination, file_reference, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business, denomination) DO NOTHING
	`, business, denomination, uuid.New().String(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger: %w", err)
	}

	l := Ledger{Business: business, Denomination: denomination}
	err = s.db.QueryRowContext(ctx, `
		SELECT file_reference, created_at
		FROM ledgers
		WHERE business = $1 AND denomination = $2
	`, business, denomination).Scan(&l.FileReference, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return &l, nil
}

// ListLedgers returns the ledgers of a business by ascending denomination.
func (s *PostgresStore) ListLedgers(ctx context.Context, business string) ([]*Ledger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT business, denomination, file_reference, created_at
		FROM ledgers
		WHERE business = $1
		ORDER BY denomination ASC
	`, business)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}
	defer rows.Close()

	var list []*Ledger
	for rows.Next() {
		var l Ledger
		if err := rows.Scan(&l.Business, &l.Denomination, &l.FileReference, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger: %w", err)
		}
		list = append(list, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledgers: %w", err)
	}
	return list, nil
}

// PutArtifact creates or overwrites an artifact.
func (s *PostgresStore) PutArtifact(ctx context.Context, business, name string, content []byte) (*Artifact, error) {
	if err := s.businessExists(ctx, business); err != nil {
		return nil, err
	}

	a := Artifact{Business: business, Name: name, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO artifacts (id, business, name, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (business, name) DO UPDATE
		SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, uuid.New().String(), business, name, content, time.Now()).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}
	return &a, nil
}

// GetArtifact retrieves an artifact by ID.
func (s *PostgresStore) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}

	var a Artifact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business, name, content, created_at, updated_at
		FROM artifacts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Business, &a.Name, &a.Content, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) businessExists(ctx context.Context, name string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM businesses WHERE name = $1)
	`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check business existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("business %s: %w", name, ErrNotFound)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
