package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/simrelease/simrelease/internal/audit"
	"github.com/spf13/cobra"
)

// RegisterAuditCommands adds audit trail inspection commands.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the local audit trail",
	}

	auditCmd.AddCommand(newAuditListCmd())
	auditCmd.AddCommand(newAuditVerifyCmd())

	root.AddCommand(auditCmd)
}

func newAuditListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			records, err := audit.List(engine.AuditDB, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No audit records.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tEVENT\tOPERATOR\tENV\tDETAIL")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					r.Timestamp.Local().Format(time.DateTime),
					r.EventType,
					r.Operator,
					r.Environment,
					r.Detail,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of records (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			valid, count, err := audit.Verify(engine.AuditDB)
			if !valid {
				return fmt.Errorf("audit chain INVALID after %d records: %v", count, err)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Audit chain OK (%d records)\n", count)
			return nil
		},
	}
}
