package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/relationship-crm/internal/importer"
)

var (
	importOwner     string
	importSheet     string
	importBatchSize int
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage contacts",
}

var contactsImportCmd = &cobra.Command{
	Use:   "import <path|ftp-url>",
	Short: "Import contacts from a CSV, TSV or XLSX export",
	Long:  "Reads a contact export from disk or an ftp:// URL and adds the addresses the owner does not already have.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importOwner == "" {
			return eris.New("--owner is required")
		}
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		return runImport(ctx, importer.New(st,
			importer.WithBatchSize(importBatchSize),
			importer.WithSheet(importSheet),
		), args[0], importOwner, cmd)
	},
}

func runImport(ctx context.Context, imp *importer.Importer, source, owner string, cmd *cobra.Command) error {
	res, err := imp.Import(ctx, source, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rows=%d inserted=%d duplicates=%d invalid=%d\n",
		res.Rows, res.Inserted, res.Duplicates, res.Invalid)
	return nil
}

func init() {
	contactsImportCmd.Flags().StringVar(&importOwner, "owner", "", "owner id the contacts belong to")
	contactsImportCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	contactsImportCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "contacts written per batch")

	contactsCmd.AddCommand(contactsImportCmd)
	rootCmd.AddCommand(contactsCmd)
}
