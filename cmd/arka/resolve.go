package main

import (
	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/config"
)

func newResolveCmd() *cobra.Command {
	var lenient bool
	cmd := &cobra.Command{
		Use:   "resolve REF",
		Short: "Print the value a reference resolves to",
		Example: `  arka resolve ARKORE09-NAMING:regex.ticket
  arka resolve --lenient ARKORE13-TEMPLATES:us.readme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := loadAssembly(config.Current())
			if err != nil {
				return err
			}
			if lenient {
				v, ok, err := asm.Lookup(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return outputJSON(cmd.OutOrStdout(), nil)
				}
				return outputJSON(cmd.OutOrStdout(), v)
			}
			v, err := asm.Resolve(args[0])
			if err != nil {
				return err
			}
			return outputJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Print null instead of failing on a missing path")
	return cmd
}
