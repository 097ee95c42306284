package main

import (
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/xbrl-cli/internal/taxonomy"
)

var warmNamespaces []string

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-fetch well-known taxonomies into the local cache",
	Long:  "Downloads and parses every taxonomy in the registry so later parse runs resolve them from disk. Pass --namespace to warm a subset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("warm"); err != nil {
			return err
		}

		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		shared, err := taxonomy.NewSharedCache(cfg.Parser.SharedCacheSize)
		if err != nil {
			return eris.Wrap(err, "create shared cache")
		}

		namespaces := warmNamespaces
		if len(namespaces) == 0 {
			namespaces = reg.Namespaces()
		}

		fc := newCache(cfg)

		zap.L().Info("warming taxonomy cache", zap.Int("namespaces", len(namespaces)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Parser.MaxConcurrent)

		var succeeded, failed atomic.Int64

		for _, ns := range namespaces {
			g.Go(func() error {
				log := zap.L().With(zap.String("namespace", ns))

				// Sessions are single-threaded, so each namespace gets its
				// own; the shared cache carries results across them.
				sess := taxonomy.NewSession(fc,
					taxonomy.WithRegistry(reg),
					taxonomy.WithSharedCache(shared),
				)
				sc, err := sess.ParseCommon(gctx, ns)
				if err != nil {
					failed.Add(1)
					log.Error("warm failed", zap.Error(err))
					return nil
				}

				succeeded.Add(1)
				log.Info("taxonomy cached",
					zap.Int("concepts", len(sc.Concepts)),
					zap.Int("imports", len(sc.Imports)),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "warm batch")
		}

		zap.L().Info("warm complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)

		if failed.Load() > 0 {
			return eris.Errorf("%d of %d taxonomies failed", failed.Load(), len(namespaces))
		}
		return nil
	},
}

func init() {
	warmCmd.Flags().StringSliceVar(&warmNamespaces, "namespace", nil, "namespaces to warm (default: all registered)")
	rootCmd.AddCommand(warmCmd)
}
