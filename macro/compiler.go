package macro

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultArtifactName is the file name the automation app imports.
const DefaultArtifactName = "GShareWiFi.macro"

// Stage names the step of the compilation pipeline.
type Stage string

const (
	StageValidate             Stage = "validate"
	StageAssignSlots          Stage = "assign_slots"
	StageInjectFileReferences Stage = "inject_file_references"
	StageInjectValues         Stage = "inject_values"
	StagePruneUnused          Stage = "prune_unused"
	StageRewriteChoiceGroup   Stage = "rewrite_choice_group"
	StageInjectIdentity       Stage = "inject_identity"
	StageFinalize             Stage = "finalize"
)

// ArtifactRef addresses a persisted artifact.
type ArtifactRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ArtifactSink creates or overwrites an artifact by name.
type ArtifactSink interface {
	Put(ctx context.Context, name string, content []byte) (ArtifactRef, error)
}

// Request carries everything one compilation needs. Nothing is read from
// ambient state.
type Request struct {
	Template       string
	Denominations  []int
	FileReferences []string
	Identity       string
	DisplayName    string
	Fragments      FragmentLibrary

	// ArtifactName defaults to DefaultArtifactName.
	ArtifactName string
}

// Result is the outcome of a compilation. Failed results carry an empty
// Document and an Err wrapping one of the package sentinels.
type Result struct {
	Success     bool         `json:"success"`
	Document    string       `json:"-"`
	Message     string       `json:"message"`
	Stage       Stage        `json:"stage,omitempty"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	Artifact    *ArtifactRef `json:"artifact,omitempty"`
	Err         error        `json:"-"`
}

// Compiler specializes the macro template for a set of denominations.
// It holds no per-call state and is safe for concurrent use.
type Compiler struct {
	sink   ArtifactSink
	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for stage tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompiler creates a compiler that persists artifacts to sink. A nil sink
// is allowed for Build-only use.
func NewCompiler(sink ArtifactSink, opts ...Option) *Compiler {
	c := &Compiler{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build runs every stage except Finalize and returns the specialized document.
func (c *Compiler) Build(req Request) *Result {
	log := c.logger.With("business", strings.TrimSpace(req.DisplayName))

	if err := validate(req); err != nil {
		return c.fail(log, StageValidate, Diagnostics{}, err)
	}

	slots, err := AssignSlots(req.Denominations)
	if err != nil {
		return c.fail(log, StageAssignSlots, Diagnostics{}, err)
	}
	for i, ref := range req.FileReferences {
		slots[i].FileReference = strings.TrimSpace(ref)
	}

	doc, diag, err := InjectFileReferences(req.Template, slots)
	if err != nil {
		return c.fail(log, StageInjectFileReferences, diag, err)
	}
	log.Debug("file references injected", "replaced", diag.ReplacedCount, "remaining", diag.ActualRemaining)

	doc = InjectValues(doc, slots)

	pruned := PruneUnused(doc, slots, req.Fragments)
	if err := verifyPruned(doc, pruned, slots); err != nil {
		return c.fail(log, StagePruneUnused, diag, err)
	}
	doc = pruned
	log.Debug("unused slots pruned", "unused", len(slots.Unused()))

	doc = RewriteChoiceGroup(doc, slots.Denominations())
	doc = InjectIdentity(doc, req.Identity, req.DisplayName)

	return &Result{
		Success:     true,
		Document:    doc,
		Message:     "Macro generated successfully.",
		Diagnostics: diag,
	}
}

// Compile builds the document and writes it to the sink.
func (c *Compiler) Compile(ctx context.Context, req Request) *Result {
	log := c.logger.With("business", strings.TrimSpace(req.DisplayName))

	if c.sink == nil {
		return c.fail(log, StageValidate, Diagnostics{},
			fmt.Errorf("%w: no artifact sink configured", ErrInvalidInput))
	}

	res := c.Build(req)
	if !res.Success {
		return res
	}

	name := req.ArtifactName
	if name == "" {
		name = DefaultArtifactName
	}
	ref, err := c.sink.Put(ctx, name, []byte(res.Document))
	if err != nil {
		return c.fail(log, StageFinalize, res.Diagnostics,
			fmt.Errorf("%w: writing %s: %w", ErrPersistence, name, err))
	}

	log.Info("macro compiled", "artifact", ref.ID, "denominations", len(req.Denominations))
	res.Artifact = &ref
	return res
}

func (c *Compiler) fail(log *slog.Logger, stage Stage, diag Diagnostics, err error) *Result {
	log.Warn("macro compilation failed", "stage", string(stage), "error", err)
	return &Result{
		Success:     false,
		Message:     err.Error(),
		Stage:       stage,
		Diagnostics: diag,
		Err:         err,
	}
}

func validate(req Request) error {
	if strings.TrimSpace(req.DisplayName) == "" {
		return fmt.Errorf("%w: business name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if len(req.Denominations) == 0 {
		return fmt.Errorf("%w: at least one denomination is required", ErrInvalidInput)
	}
	if len(req.FileReferences) > SlotCount {
		return fmt.Errorf("%w: %d file references exceed the %d template slots",
			ErrInvalidInput, len(req.FileReferences), SlotCount)
	}
	if len(req.FileReferences) != len(req.Denominations) {
		return fmt.Errorf("%w: %d denominations but %d file references",
			ErrInvalidInput, len(req.Denominations), len(req.FileReferences))
	}
	for i, ref := range req.FileReferences {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("%w: file reference %d is empty", ErrInvalidInput, i+1)
		}
		if strings.Contains(ref, FileReferencePlaceholder) {
			return fmt.Errorf("%w: file reference %d contains the placeholder token", ErrInvalidInput, i+1)
		}
	}
	if req.Fragments == nil {
		return fmt.Errorf("%w: fragment library is required", ErrInvalidInput)
	}
	if req.Template == "" {
		return fmt.Errorf("%w: template is empty", ErrInvalidInput)
	}
	return nil
}
