package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/config"
	"github.com/vstruct/vstruct/internal/server"
	"github.com/vstruct/vstruct/internal/service"
	"github.com/vstruct/vstruct/internal/storage/sqldb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the structure service HTTP server",
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
		if !cfg.AdapterActive {
			logger.Info("virtual structure adapter is inactive, exiting")
			return nil
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

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.PrepopulateAtStartup {
			err := svc.Prepopulate(ctx, service.PrepopulateOptions{
				ViaFile:           cfg.PrepopulateViaFile,
				FilePath:          cfg.StructureFilePath,
				Structure:         cfg.Structure,
				OverwriteExisting: cfg.OverwriteExisting,
			})
			if err != nil {
				return err
			}
			logger.Info("structure prepopulated at startup")
		}

		handler := server.NewHandler(svc, logger, Version, nil, cfg.MaintenanceSecret)
		srv := server.New(cfg.ListenAddr, handler.Routes(cfg.PathPrefix), logger)
		logger.Info("starting virtual structure service",
			zap.String("prefix", cfg.PathPrefix),
			zap.String("dialect", cfg.DBDialect))
		return srv.Run(ctx)
	},
}
