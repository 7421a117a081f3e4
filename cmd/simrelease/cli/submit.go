package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/simrelease/simrelease/internal/batch"
	"github.com/simrelease/simrelease/internal/console"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/provision"
	"github.com/simrelease/simrelease/internal/session"
	"github.com/spf13/cobra"
)

// RegisterSubmitCommands adds submit and count.
func RegisterSubmitCommands(root *cobra.Command) {
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newCountCmd())
}

func newSubmitCmd() *cobra.Command {
	var (
		envName string
		file    string
		export  string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a batch of ICCIDs for AUC creation / SIM liberation",
		Long: `Submit one ICCID per line, read from --file or stdin, as a single batch.
Blank lines and surrounding whitespace are ignored. Your role decides which
environments you may target:

  boa_activations                             PROD only
  crm_it_team, digital_factory, roaming_team  UAT only
  support1515                                 PROD and UAT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := core.ParseEnvironment(envName)
			if err != nil {
				return err
			}

			text, err := readInput(file)
			if err != nil {
				return err
			}

			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sc := newSession(engine)
			if _, err := requireSession(sc); err != nil {
				return err
			}

			r := newRenderer(sc.Store)
			res, err := runSubmit(cmd.Context(), sc, r, text, env)
			if err != nil {
				return err
			}

			if export != "" {
				if err := sc.Export(export); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", sc.Log.Len(), export)
			}
			if !res.Success {
				return fmt.Errorf("batch failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Target environment (PROD or UAT, required)")
	cmd.Flags().StringVar(&file, "file", "", "File with one ICCID per line (default stdin)")
	cmd.Flags().StringVar(&export, "export", "", "Write the resulting log to this file")
	cmd.MarkFlagRequired("env")
	return cmd
}

// runSubmit submits text and renders the outcome. It fails only on an
// expired session or an overlapping submission.
func runSubmit(ctx context.Context, sc *session.Context, r *console.Renderer, text string, env core.Environment) (provision.Result, error) {
	r.LineCount(batch.Count(text))
	r.Info("Submitting to %s...", env)

	res, err := sc.Submit(ctx, text, env)
	switch {
	case errors.Is(err, provision.ErrNoCredential):
		return res, fmt.Errorf("session expired; run 'simrelease login'")
	case err != nil:
		return res, err
	}

	if res.Message != "" && !res.Rejected {
		r.Notice(res.Success, "%s", res.Message)
	}
	r.Entries(sc.Log.Entries())
	r.Counts(sc.Log.Counts())
	return res, nil
}

func newCountCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the ICCIDs that a submit would send",
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []string
			var err error
			if file == "" || file == "-" {
				items, err = batch.ReadSource(os.Stdin)
			} else {
				var f *os.File
				f, err = os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				items, err = batch.ReadSource(f)
			}
			if err != nil {
				return err
			}

			fmt.Println(len(items))
			if len(items) == 0 {
				fmt.Fprintln(os.Stderr, batch.EmptyMessage)
			} else if dups := duplicates(items); len(dups) > 0 {
				fmt.Fprintf(os.Stderr, "note: duplicate lines are kept: %s\n", strings.Join(dups, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "File with one ICCID per line (default stdin)")
	return cmd
}

func duplicates(items []string) []string {
	seen := make(map[string]int, len(items))
	var out []string
	for _, it := range items {
		seen[it]++
		if seen[it] == 2 {
			out = append(out, it)
		}
	}
	return out
}
