package main

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/xbrl-cli/internal/instance"
	"github.com/sells-group/xbrl-cli/internal/store"
	"github.com/sells-group/xbrl-cli/internal/taxonomy"
)

var (
	parseJSON      bool
	parseSave      bool
	parseDB        string
	parseThreshold float64
)

var parseCmd = &cobra.Command{
	Use:   "parse <instance...>",
	Short: "Parse XBRL or iXBRL instance documents",
	Long:  "Parses one or more instance documents, given as local file paths or http(s) URLs. Referenced taxonomy schemas and linkbases are resolved through the local cache.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("parse"); err != nil {
			return err
		}
		if parseJSON && len(args) > 1 {
			return eris.New("--json requires a single instance document")
		}

		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		shared, err := taxonomy.NewSharedCache(cfg.Parser.SharedCacheSize)
		if err != nil {
			return eris.Wrap(err, "create shared cache")
		}

		threshold := cfg.Parser.RoundingThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = parseThreshold
		}

		parser := instance.NewParser(newCache(cfg),
			instance.WithRegistry(reg),
			instance.WithSharedCache(shared),
			instance.WithRoundingThreshold(threshold),
		)

		var st *store.SQLiteStore
		if parseSave {
			dbPath := cfg.Store.Path
			if parseDB != "" {
				dbPath = parseDB
			}
			if dbPath == "" {
				return eris.New("--save requires a store path (store.path or --db)")
			}
			st, err = store.NewSQLite(dbPath)
			if err != nil {
				return eris.Wrap(err, "open store")
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		instances := make([]*instance.Instance, len(args))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Parser.MaxConcurrent)

		var succeeded, failed atomic.Int64

		for i, arg := range args {
			g.Go(func() error {
				log := zap.L().With(zap.String("instance", arg))

				inst, err := parseOne(gctx, parser, arg)
				if err != nil {
					failed.Add(1)
					log.Error("parse failed", zap.Error(err))
					return nil // don't abort the batch on individual failure
				}

				if st != nil {
					filing, facts := store.FilingFromInstance(inst)
					if err := st.SaveFiling(gctx, filing, facts); err != nil {
						failed.Add(1)
						log.Error("save filing failed", zap.Error(err))
						return nil
					}
				}

				instances[i] = inst
				succeeded.Add(1)
				log.Info("parse complete",
					zap.Int("facts", len(inst.Facts)),
					zap.Int("contexts", len(inst.Contexts)),
					zap.Int("units", len(inst.Units)),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "parse batch")
		}

		zap.L().Info("batch complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)

		if parseJSON && instances[0] != nil {
			data, err := instances[0].JSON()
			if err != nil {
				return eris.Wrap(err, "encode xbrl-json")
			}
			if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
				return eris.Wrap(err, "write xbrl-json")
			}
		}

		if failed.Load() > 0 {
			return eris.Errorf("%d of %d documents failed", failed.Load(), len(args))
		}
		return nil
	},
}

// parseOne dispatches to URL or file parsing based on the argument's scheme.
func parseOne(ctx context.Context, p *instance.Parser, arg string) (*instance.Instance, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return p.ParseURL(ctx, arg)
	}
	return p.ParseFile(ctx, arg)
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print the parsed document as xbrl-json to stdout (single instance only)")
	parseCmd.Flags().BoolVar(&parseSave, "save", false, "persist parsed facts to the SQLite store")
	parseCmd.Flags().StringVar(&parseDB, "db", "", "SQLite store path (overrides store.path)")
	parseCmd.Flags().Float64Var(&parseThreshold, "threshold", 0, "round numeric fact values whose magnitude exceeds this (overrides parser.rounding_threshold)")
	rootCmd.AddCommand(parseCmd)
}
