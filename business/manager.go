package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/liamcoop/vouchermacro/macro"
	"github.com/liamcoop/vouchermacro/policy"
	"github.com/liamcoop/vouchermacro/store"
)

// Config controls how the manager loads templates and names artifacts.
type Config struct {
	TemplateName  string
	ArtifactName  string
	PublicBaseURL string
}

// DefaultConfig returns the names the automation app expects.
func DefaultConfig() Config {
	return Config{
		TemplateName: "temp.macro",
		ArtifactName: macro.DefaultArtifactName,
	}
}

// ProvisionRequest asks for a business's macro covering denominations.
type ProvisionRequest struct {
	Business      string `json:"-"`
	Identity      string `json:"identity"`
	Denominations []int  `json:"denominations"`
	// Force re-reads the template set from the store instead of the cache.
	Force bool `json:"force"`
}

// ProvisionResult is the outcome of a provisioning call.
type ProvisionResult struct {
	Business      string          `json:"business"`
	Denominations []int           `json:"denominations"`
	Ledgers       []*store.Ledger `json:"ledgers"`
	Compile       *macro.Result   `json:"compile,omitempty"`
}

// Manager runs per-business operations. Calls for the same business are
// serialized; different businesses proceed in parallel.
type Manager struct {
	store     store.Store
	templates *store.TemplateCache
	cfg       Config
	logger    *slog.Logger

	policies map[string]*policy.Policy
	locks    map[string]*sync.Mutex
	mu       sync.RWMutex
	locksMu  sync.Mutex
}

// NewManager creates a manager over s. templates may be nil, in which case
// every call reads the template set from s.
func NewManager(s store.Store, templates *store.TemplateCache, cfg Config, logger *slog.Logger) *Manager {
	if templates == nil {
		templates = store.NewTemplateCache(s, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TemplateName == "" {
		cfg.TemplateName = DefaultConfig().TemplateName
	}
	if cfg.ArtifactName == "" {
		cfg.ArtifactName = macro.DefaultArtifactName
	}
	return &Manager{
		store:     s,
		templates: templates,
		cfg:       cfg,
		logger:    logger,
		policies:  make(map[string]*policy.Policy),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(name string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// LoadAll compiles the stored policy of every business.
func (m *Manager) LoadAll(ctx context.Context) error {
	businesses, err := m.store.ListBusinesses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list businesses: %w", err)
	}

	compiled := make(map[string]*policy.Policy, len(businesses))
	for _, b := range businesses {
		if b.Policy == "" {
			continue
		}
		p, err := policy.Compile(b.Policy)
		if err != nil {
			return fmt.Errorf("invalid policy for business %s: %w", b.Name, err)
		}
		compiled[b.Name] = p
	}

	m.mu.Lock()
	m.policies = compiled
	m.mu.Unlock()

	m.logger.Info("businesses loaded", "count", len(businesses), "policies", len(compiled))
	return nil
}

// Register creates or updates a business. An empty policy removes any
// existing one. The new policy takes effect atomically once stored.
func (m *Manager) Register(ctx context.Context, name, identity, policyExpr string) (*store.Business, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	var p *policy.Policy
	if policyExpr != "" {
		var err error
		if p, err = policy.Compile(policyExpr); err != nil {
			return nil, fmt.Errorf("%w: %w", macro.ErrInvalidInput, err)
		}
	}

	unlock := m.lock(name)
	defer unlock()

	b := &store.Business{Name: name, Identity: identity, Policy: p.Expression()}
	if err := m.store.UpsertBusiness(ctx, b); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if p != nil {
		m.policies[name] = p
	} else {
		delete(m.policies, name)
	}
	m.mu.Unlock()

	return b, nil
}

// Get returns a registered business.
func (m *Manager) Get(ctx context.Context, name string) (*store.Business, error) {
	return m.store.GetBusiness(ctx, name)
}

// List returns all registered businesses.
func (m *Manager) List(ctx context.Context) ([]*store.Business, error) {
	return m.store.ListBusinesses(ctx)
}

// Delete removes a business with its ledgers and artifacts.
func (m *Manager) Delete(ctx context.Context, name string) error {
	unlock := m.lock(name)
	defer unlock()

	if err := m.store.DeleteBusiness(ctx, name); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.policies, name)
	m.mu.Unlock()
	return nil
}

// Ledgers returns a business's ledgers by ascending denomination.
func (m *Manager) Ledgers(ctx context.Context, name string) ([]*store.Ledger, error) {
	if _, err := m.store.GetBusiness(ctx, name); err != nil {
		return nil, err
	}
	return m.store.ListLedgers(ctx, name)
}

// policyFor returns the compiled policy matching b.Policy, recompiling when
// the stored expression changed underneath the cache.
func (m *Manager) policyFor(b *store.Business) (*policy.Policy, error) {
	if b.Policy == "" {
		return nil, nil
	}

	m.mu.RLock()
	p, ok := m.policies[b.Name]
	m.mu.RUnlock()
	if ok && p.Expression() == b.Policy {
		return p, nil
	}

	p, err := policy.Compile(b.Policy)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.policies[b.Name] = p
	m.mu.Unlock()
	return p, nil
}

// Provision brings a business's macro up to date: it merges the requested
// denominations with the existing ledgers, ensures a ledger for each, and
// compiles and stores the macro. A request rejected as invalid, or one whose
// template set cannot be loaded, leaves the store untouched.
//
// When compilation fails the returned result still carries the compile
// outcome along with the error.
func (m *Manager) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if err := ValidateName(req.Business); err != nil {
		return nil, err
	}
	if err := ValidateIdentity(req.Identity); err != nil {
		return nil, err
	}

	unlock := m.lock(req.Business)
	defer unlock()

	b, err := m.store.GetBusiness(ctx, req.Business)
	var existing []*store.Ledger
	switch {
	case errors.Is(err, store.ErrNotFound):
		b = &store.Business{Name: req.Business}
	case err != nil:
		return nil, err
	default:
		if existing, err = m.store.ListLedgers(ctx, b.Name); err != nil {
			return nil, err
		}
	}

	denominations := MergeDenominations(existing, req.Denominations)
	if len(denominations) == 0 {
		return nil, fmt.Errorf("%w: at least one denomination is required", macro.ErrInvalidInput)
	}
	if len(denominations) > macro.SlotCount {
		return nil, fmt.Errorf("%w: %d denominations exceed the %d template slots",
			macro.ErrInvalidInput, len(denominations), macro.SlotCount)
	}

	p, err := m.policyFor(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", macro.ErrInvalidInput, err)
	}
	if err := p.Check(denominations); err != nil {
		return nil, fmt.Errorf("%w: %w", macro.ErrInvalidInput, err)
	}

	template, fragments, err := m.templateSet(ctx, req.Force)
	if err != nil {
		return nil, err
	}

	// Nothing is written until the request has passed every check above.
	b.Identity = req.Identity
	if err := m.store.UpsertBusiness(ctx, b); err != nil {
		return nil, err
	}

	ledgers := make([]*store.Ledger, 0, len(denominations))
	refs := make([]string, 0, len(denominations))
	for _, d := range denominations {
		l, err := m.store.EnsureLedger(ctx, b.Name, d)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure ledger for %d: %w", d, err)
		}
		ledgers = append(ledgers, l)
		refs = append(refs, l.FileReference)
	}

	compiler := macro.NewCompiler(
		store.NewBusinessSink(m.store, b.Name, m.cfg.PublicBaseURL),
		macro.WithLogger(m.logger),
	)
	res := compiler.Compile(ctx, macro.Request{
		Template:       template,
		Denominations:  denominations,
		FileReferences: refs,
		Identity:       b.Identity,
		DisplayName:    b.Name,
		Fragments:      fragments,
		ArtifactName:   m.cfg.ArtifactName,
	})

	result := &ProvisionResult{
		Business:      b.Name,
		Denominations: denominations,
		Ledgers:       ledgers,
		Compile:       res,
	}
	if !res.Success {
		return result, res.Err
	}

	m.logger.Info("macro provisioned",
		"business", b.Name,
		"denominations", denominations,
		"artifact", res.Artifact.ID,
	)
	return result, nil
}

func (m *Manager) templateSet(ctx context.Context, force bool) (string, macro.FragmentSet, error) {
	var (
		template  string
		fragments macro.FragmentSet
		err       error
	)
	if force {
		template, err = m.templates.ReloadTemplate(ctx, m.cfg.TemplateName)
	} else {
		template, err = m.templates.Template(ctx, m.cfg.TemplateName)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load template %s: %w", m.cfg.TemplateName, err)
	}

	if force {
		fragments, err = m.templates.ReloadFragments(ctx)
	} else {
		fragments, err = m.templates.Fragments(ctx)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load fragments: %w", err)
	}
	return template, fragments, nil
}

// MergeDenominations combines existing ledger denominations with requested
// ones, dropping non-positive values and duplicates, sorted ascending.
func MergeDenominations(existing []*store.Ledger, requested []int) []int {
	seen := make(map[int]bool, len(existing)+len(requested))
	var merged []int
	add := func(d int) {
		if d > 0 && !seen[d] {
			seen[d] = true
			merged = append(merged, d)
		}
	}
	for _, l := range existing {
		add(l.Denomination)
	}
	for _, d := range requested {
		add(d)
	}
	sort.Ints(merged)
	return merged
}
