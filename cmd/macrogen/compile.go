package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/liamcoop/vouchermacro/internal/logger"
	"github.com/liamcoop/vouchermacro/macro"
	"github.com/liamcoop/vouchermacro/store"
)

type compileOptions struct {
	dir          string
	templateName string
	amounts      []int
	refs         []string
	identity     string
	name         string
	out          string
	artifact     string
	jsonOutput   bool
}

func newCompileCmd() *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a macro for a set of denominations",
		Long: `Reads the template and fragment library from --dir, specializes it for
the given denominations and writes the artifact into --out.

Each --amount is paired with the --ref at the same position. When no --ref
is given a fresh file reference is generated per amount.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", ".", "exported template directory")
	f.StringVar(&opts.templateName, "template", "temp.macro", "template file name inside --dir")
	f.IntSliceVar(&opts.amounts, "amount", nil, "denomination to include (repeatable)")
	f.StringSliceVar(&opts.refs, "ref", nil, "file reference for the amount at the same position (repeatable)")
	f.StringVar(&opts.identity, "identity", "", "account identity written into the macro")
	f.StringVar(&opts.name, "name", "", "business display name")
	f.StringVar(&opts.out, "out", ".", "output directory")
	f.StringVar(&opts.artifact, "artifact", macro.DefaultArtifactName, "artifact file name")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the compile result as JSON")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *compileOptions) error {
	ctx := cmd.Context()
	src := store.NewDir(opts.dir)

	template, err := src.GetTemplate(ctx, opts.templateName)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	fragments, err := src.Fragments(ctx)
	if err != nil {
		return fmt.Errorf("reading fragments: %w", err)
	}

	refs := opts.refs
	if len(refs) == 0 {
		refs = make([]string, len(opts.amounts))
		for i := range refs {
			refs[i] = uuid.NewString()
		}
	}

	compiler := macro.NewCompiler(store.NewDir(opts.out), macro.WithLogger(logger.Logger))
	res := compiler.Compile(ctx, macro.Request{
		Template:       template,
		Denominations:  opts.amounts,
		FileReferences: refs,
		Identity:       opts.identity,
		DisplayName:    opts.name,
		Fragments:      fragments,
		ArtifactName:   opts.artifact,
	})

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if !res.Success {
		return fmt.Errorf("%s failed: %w", res.Stage, res.Err)
	}

	if !opts.jsonOutput {
		fmt.Fprintln(out, res.Message)
		fmt.Fprintf(out, "  artifact:   %s\n", res.Artifact.URL)
		fmt.Fprintf(out, "  replaced:   %d\n", res.Diagnostics.ReplacedCount)
		for i, d := range opts.amounts {
			fmt.Fprintf(out, "  %6d  %s\n", d, refs[i])
		}
	}
	return nil
}
