package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vstruct/vstruct/internal/config"
	"github.com/vstruct/vstruct/internal/service"
	"github.com/vstruct/vstruct/internal/storage/sqldb"
)

var importOverwrite bool

var importCmd = &cobra.Command{
	Use:   "import <structure.json>",
	Short: "Load a complete structure document into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		cs, err := service.LoadFromJSONFile(args[0])
		if err != nil {
			return err
		}

		store, err := sqldb.Open(sqldb.Config{
			Dialect: sqldb.Dialect(cfg.DBDialect),
			DSN:     cfg.DBDSN,
		}, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := service.New(store, logger)
		ctx := context.Background()

		if importOverwrite {
			if err := svc.DeleteStructure(ctx); err != nil {
				return err
			}
		}
		if err := svc.UpdateStructure(ctx, cs); err != nil {
			return err
		}

		// Report the post-import store contents rather than the document
		// counts; without --overwrite the import merges into whatever
		// was already there.
		sources, err := svc.AllSources(ctx)
		if err != nil {
			return err
		}
		sinks, err := svc.AllSinks(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d element types and %d thing nodes; store now holds %d sources and %d sinks\n",
			len(cs.ElementTypes), len(cs.ThingNodes), len(sources), len(sinks))
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false,
		"delete the existing structure before importing")
}
