package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/vouchermacro/macro"
	"github.com/liamcoop/vouchermacro/store"
)

func newInspectCmd() *cobra.Command {
	var dir, templateName string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report whether a template directory has the expected shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := store.NewDir(dir)

			template, err := src.GetTemplate(ctx, templateName)
			if err != nil {
				return fmt.Errorf("reading template: %w", err)
			}
			fragments, err := src.Fragments(ctx)
			if err != nil {
				return fmt.Errorf("reading fragments: %w", err)
			}

			out := cmd.OutOrStdout()
			placeholders := macro.CountPlaceholders(template)
			fmt.Fprintf(out, "template:      %s (%d bytes)\n", templateName, len(template))
			fmt.Fprintf(out, "placeholders:  %d/%d\n", placeholders, macro.SlotCount)

			group, ok := macro.FindChoiceGroup(template)
			if ok {
				fmt.Fprintf(out, "trigger:       %s\n", template[group.Start:group.End])
			} else {
				fmt.Fprintln(out, "trigger:       missing")
			}

			var missing []string
			for _, kind := range macro.FragmentKinds {
				for i := 1; i <= macro.SlotCount; i++ {
					if _, found := fragments.Fragment(kind, i); !found {
						missing = append(missing, kind.FileName(i))
					}
				}
			}
			fmt.Fprintf(out, "fragments:     %d/%d\n",
				len(macro.FragmentKinds)*macro.SlotCount-len(missing), len(macro.FragmentKinds)*macro.SlotCount)
			for _, name := range missing {
				fmt.Fprintf(out, "  missing %s\n", name)
			}

			if placeholders != macro.SlotCount || !ok {
				return fmt.Errorf("%w: template has %d placeholders, trigger found: %v",
					macro.ErrTemplateMismatch, placeholders, ok)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "exported template directory")
	cmd.Flags().StringVar(&templateName, "template", "temp.macro", "template file name inside --dir")
	return cmd
}
