package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check protocol files without resolving anything",
	Long: `Loads the given protocol files, or the protocol directory when no files are
given, and reports every rejected protocol with all of its problems.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		reg := protocol.NewRegistry(logger)
		if !noBuiltins {
			if _, err := protocol.LoadBuiltins(reg); err != nil {
				return fmt.Errorf("built-in library is invalid: %w", err)
			}
		}

		var errs []error
		loaded := 0
		switch {
		case len(args) > 0:
			for _, path := range args {
				n, err := protocol.LoadFile(reg, path)
				loaded += n
				if err != nil {
					errs = append(errs, err)
				}
			}
		case cfg.ProtocolsDir != "":
			n, err := protocol.LoadDir(reg, cfg.ProtocolsDir)
			loaded += n
			if err != nil {
				errs = append(errs, err)
			}
		}

		for _, p := range reg.Protocols() {
			fmt.Fprintf(out, "ok    %-24s  %d stage(s)\n", p.ID, len(p.Stages))
		}
		if len(errs) == 0 {
			fmt.Fprintf(out, "\n%d protocol(s) loaded, %d registered\n", loaded, reg.Len())
			return nil
		}
		err := errors.Join(errs...)
		fmt.Fprintf(out, "\nrejected:\n%v\n", err)
		return fmt.Errorf("%d file(s) with rejected protocols", len(errs))
	},
}
