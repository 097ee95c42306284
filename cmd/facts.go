package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/xbrl-cli/internal/store"
)

var (
	factsDB       string
	factsLocation string
	factsConcept  string
	factsLimit    int
	factsOffset   int
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Query facts from the SQLite store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dbPath := cfg.Store.Path
		if factsDB != "" {
			dbPath = factsDB
		} else if err := cfg.Validate("facts"); err != nil {
			return err
		}
		st, err := store.NewSQLite(dbPath)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		filter := store.FactFilter{
			Concept: factsConcept,
			Limit:   factsLimit,
			Offset:  factsOffset,
		}
		if factsLocation != "" {
			filing, err := st.FindFilingByLocation(ctx, factsLocation)
			if err != nil {
				return eris.Wrapf(err, "find filing %s", factsLocation)
			}
			filter.FilingID = filing.ID
		}

		facts, err := st.ListFacts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list facts")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(facts)
	},
}

func init() {
	factsCmd.Flags().StringVar(&factsDB, "db", "", "SQLite store path (overrides store.path)")
	factsCmd.Flags().StringVar(&factsLocation, "location", "", "filter by filing location (path or URL as parsed)")
	factsCmd.Flags().StringVar(&factsConcept, "concept", "", "filter by concept name")
	factsCmd.Flags().IntVar(&factsLimit, "limit", 100, "maximum facts to return")
	factsCmd.Flags().IntVar(&factsOffset, "offset", 0, "number of facts to skip")
	rootCmd.AddCommand(factsCmd)
}
