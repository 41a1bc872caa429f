package main

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/config"
	"github.com/havenportal/drivesync/internal/crypto"
	"github.com/havenportal/drivesync/internal/handler"
	"github.com/havenportal/drivesync/internal/ledger"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/remote/googledrive"
	"github.com/havenportal/drivesync/internal/remote/memory"
	"github.com/havenportal/drivesync/internal/secret"
	"github.com/havenportal/drivesync/internal/server"
	"github.com/havenportal/drivesync/internal/store"
	"github.com/havenportal/drivesync/internal/syncer"
	"github.com/havenportal/drivesync/internal/uploads"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load(ctx, secret.NewEnvResolver())
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.RunMigrations(ctx); err != nil {
			return err
		}
		st = pg
	}

	encryptor := crypto.NewAESEncryptor(cfg.TokenCryptoSecret)
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			drive.DriveFileScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
	manager := auth.NewManager(oauthConfig, st.Credentials(), encryptor, logger)

	var remotes remote.Provider
	if cfg.DevMode {
		logger.Warn("dev mode, using in-memory remote storage")
		remotes = &remote.StaticProvider{S: memory.New()}
	} else {
		remotes = googledrive.NewProvider(manager, nil)
	}

	sink := activity.NewLogSink(logger)
	oracle := &authz.OwnerOracle{}

	lgr := ledger.New(st, remotes, oracle, sink, logger)
	broker := uploads.NewBroker(st, remotes, lgr, sink, logger, cfg.BaseFolderName)
	sync := syncer.New(st, remotes, lgr, sink, logger)

	srv := server.New(cfg, logger, server.Handlers{
		Files: handler.NewFileHandler(broker, lgr, remotes, st, oracle, cfg.JWTSecret, logger, cfg.ExportMaxFiles, cfg.ExportMaxBytes),
		Sync:  handler.NewSyncHandler(sync, st, oracle, cfg.JWTSecret, logger),
		Drive: handler.NewDriveHandler(manager, broker, sink, cfg.JWTSecret, logger),
	})
	return srv.Run()
}
