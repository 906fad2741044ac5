package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"opsdash/internal/audit"

	"github.com/spf13/cobra"
)

type auditListOptions struct {
	category string
	userID   string
	since    time.Duration
	page     int
	pageSize int
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	auditCmd.AddCommand(newAuditListCmd(opts))
	return auditCmd
}

func newAuditListCmd(opts *globalOptions) *cobra.Command {
	in := &auditListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := audit.Query{UserID: in.userID, Page: in.page, PageSize: in.pageSize}
			if in.category != "" {
				q.Category = audit.Category(in.category)
				if !q.Category.Valid() {
					return fmt.Errorf("unknown category %q", in.category)
				}
			}
			if in.since > 0 {
				since := time.Now().Add(-in.since)
				q.Since = &since
			}

			_, db, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			records, page, err := audit.NewRecorder(db, nil).Query(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, map[string]any{"items": records, "pagination": page})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tCATEGORY\tUSER\tIP\tDESCRIPTION")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.Category, dash(r.Username), dash(r.IPAddress), r.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "page %d/%d, %d records\n", page.Page, page.TotalPages, page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.category, "category", "", "filter by category (e.g. SERVICE_CONTROL)")
	cmd.Flags().StringVar(&in.userID, "user", "", "filter by user id")
	cmd.Flags().DurationVar(&in.since, "since", 0, "only records newer than this duration (e.g. 24h)")
	cmd.Flags().IntVar(&in.page, "page", 1, "page number")
	cmd.Flags().IntVar(&in.pageSize, "page-size", audit.DefaultPageSize, "records per page")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
