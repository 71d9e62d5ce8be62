// Package store persists everything the macro compiler reads or writes
// outside the template text itself: the template set, the business registry,
// ledger references and compiled artifacts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/vouchermacro/macro"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath is returned when a file name escapes its root directory.
	ErrInvalidPath = errors.New("invalid path")
)

// Business is a registered voucher seller.
type Business struct {
	Name      string    `json:"name"`
	Identity  string    `json:"identity"`
	Policy    string    `json:"policy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ledger is the voucher file of one denomination. The compiler only needs
// its opaque file reference.
type Ledger struct {
	Business      string    `json:"business"`
	Denomination  int       `json:"denomination"`
	FileReference string    `json:"fileReference"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Artifact is a compiled macro document.
type Artifact struct {
	ID        string    `json:"id"`
	Business  string    `json:"business"`
	Name      string    `json:"name"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TemplateStore holds the macro template and its fragment library.
type TemplateStore interface {
	GetTemplate(ctx context.Context, name string) (string, error)
	PutTemplate(ctx context.Context, name, content string) error
	// Fragments returns every stored snippet. Missing snippets are simply absent.
	Fragments(ctx context.Context) (macro.FragmentSet, error)
	PutFragment(ctx context.Context, kind macro.FragmentKind, index int, content string) error
}

// BusinessStore is the business registry.
type BusinessStore interface {
	// UpsertBusiness creates or updates b, keeping CreatedAt of an existing record.
	UpsertBusiness(ctx context.Context, b *Business) error
	GetBusiness(ctx context.Context, name string) (*Business, error)
	// ListBusinesses returns all businesses ordered by name.
	ListBusinesses(ctx context.Context) ([]*Business, error)
	// DeleteBusiness removes the business with its ledgers and artifacts.
	DeleteBusiness(ctx context.Context, name string) error
}

// LedgerStore tracks one ledger reference per business and denomination.
type LedgerStore interface {
	// EnsureLedger returns the existing ledger or creates one with a fresh reference.
	EnsureLedger(ctx context.Context, business string, denomination int) (*Ledger, error)
	// ListLedgers returns the business's ledgers by ascending denomination.
	ListLedgers(ctx context.Context, business string) ([]*Ledger, error)
}

// ArtifactStore keeps compiled artifacts.
type ArtifactStore interface {
	// PutArtifact creates or overwrites the artifact named name for business.
	// The ID is stable across overwrites.
	PutArtifact(ctx context.Context, business, name string, content []byte) (*Artifact, error)
	GetArtifact(ctx context.Context, id string) (*Artifact, error)
}

// Store combines every persistence concern of the service.
type Store interface {
	TemplateStore
	BusinessStore
	LedgerStore
	ArtifactStore
}

func checkFragmentIndex(index int) error {
	if index < 1 || index > macro.SlotCount {
		return fmt.Errorf("%w: fragment index %d outside 1-%d", macro.ErrInvalidInput, index, macro.SlotCount)
	}
	return nil
}
