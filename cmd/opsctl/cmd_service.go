package main

import (
	"fmt"
	"time"

	"opsdash/internal/policy"
	"opsdash/internal/servicestatus"

	"github.com/spf13/cobra"
)

func newServiceCmd(opts *globalOptions) *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Read the cached systemd service status",
	}
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status <name>",
		Short: "Show the last observed status of a service (does not probe)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !policy.ValidServiceName(name) {
				return fmt.Errorf("invalid service name %q", name)
			}

			_, db, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := servicestatus.NewStore(db).Get(cmd.Context(), name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, rec)
			}
			checked := "never"
			if !rec.LastChecked.IsZero() {
				checked = rec.LastChecked.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%s: %s (last checked %s, auto-start %t)\n", rec.ServiceName, rec.Status, checked, rec.AutoStart)
			return nil
		},
	})
	return serviceCmd
}
