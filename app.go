package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"device-relay/internal/audit"
	"device-relay/internal/auth"
	commandsapp "device-relay/internal/commands/application"
	commandsmemory "device-relay/internal/commands/infrastructure/memory"
	commandshttp "device-relay/internal/commands/interfaces/http"
	"device-relay/internal/config"
	credentialsapp "device-relay/internal/credentials/application"
	credentials "device-relay/internal/credentials/domain"
	credentialsmemory "device-relay/internal/credentials/infrastructure/memory"
	credentialspostgres "device-relay/internal/credentials/infrastructure/postgres"
	credentialssqlite "device-relay/internal/credentials/infrastructure/sqlite"
	credentialshttp "device-relay/internal/credentials/interfaces/http"
	identityapp "device-relay/internal/identity/application"
	identitymemory "device-relay/internal/identity/infrastructure/memory"
	identityhttp "device-relay/internal/identity/interfaces/http"
	"device-relay/internal/jobs"
	"device-relay/internal/notify"
	"device-relay/internal/presence"
)

// app holds the wired relay and the resources it must release.
type app struct {
	handler      http.Handler
	housekeeping *jobs.Housekeeping
	closers      []func() error
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	credentialRepo, auditLogger, err := a.openStorage(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg.Notifier, logger)
	if err != nil {
		return nil, err
	}
	templates, err := notify.NewTemplates()
	if err != nil {
		return nil, err
	}
	secret := []byte(cfg.Auth.JWTSecret)

	identityService, err := identityapp.NewService(identitymemory.NewCodeStore(), notifier, templates, secret,
		identityapp.WithLogger(logger),
		identityapp.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	identityHandler, err := identityhttp.NewHandler(identityService)
	if err != nil {
		return nil, err
	}

	credentialService, err := credentialsapp.NewService(credentialRepo, notifier, templates, credentialsapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("credential service: %w", err)
	}
	credentialHandler, err := credentialshttp.NewHandler(credentialService, auditLogger)
	if err != nil {
		return nil, err
	}

	commandService, err := commandsapp.NewService(
		commandsmemory.NewCommandRepository(),
		presence.NewTracker(presence.SystemClock{}),
		commandsapp.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("command service: %w", err)
	}
	masterHandler, err := commandshttp.NewMasterHandler(commandService, auditLogger)
	if err != nil {
		return nil, err
	}
	deviceHandler, err := commandshttp.NewDeviceHandler(commandService)
	if err != nil {
		return nil, err
	}

	a.housekeeping, err = jobs.NewHousekeeping(identityService, commandService, logger)
	if err != nil {
		return nil, err
	}

	policy := auth.NewDefaultPolicy(
		[]string{"/healthz", "/metrics"},
		[]string{"/api/auth/login", "/api/auth/verify", "/api/auth/resend-code"},
		[]string{"/api/device/", "/api/auth/protected-by-api-key"},
	)
	authMiddleware := auth.NewMiddleware(secret, policy, credentialService)

	mux := http.NewServeMux()
	identityHandler.Routes(mux)
	mux.Handle("/api/auth/api-keys", credentialHandler)
	mux.Handle("/api/auth/api-keys/", credentialHandler)
	mux.HandleFunc("/api/auth/protected-by-api-key", credentialHandler.KeyCheck)
	mux.Handle("/api/master/", masterHandler)
	deviceHandler.Routes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	a.handler = authMiddleware.Wrap(mux)
	ok = true
	return a, nil
}

func (a *app) openStorage(cfg config.StorageConfig, logger *log.Logger) (credentials.Repository, audit.Logger, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return credentialsmemory.NewCredentialRepository(), audit.NewLogLogger(logger), nil
	case config.StorageSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		store, err := credentialssqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, audit.NewLogLogger(logger), nil
	case config.StoragePostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open error: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Ping(); err != nil {
			return nil, nil, fmt.Errorf("db ping error: %w", err)
		}
		return credentialspostgres.NewCredentialRepository(db), audit.NewRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func buildNotifier(cfg config.NotifyConfig, logger *log.Logger) (notify.Notifier, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	var notifiers []notify.Notifier
	for _, driver := range cfg.Drivers() {
		var (
			n   notify.Notifier
			err error
		)
		switch driver {
		case config.NotifierLog:
			n, err = notify.NewLogNotifier(logger)
		case config.NotifierWebhook:
			n, err = notify.NewWebhookNotifier(cfg.WebhookURL, notify.WithHTTPClient(client))
		case config.NotifierEmail:
			n, err = notify.NewEmailNotifier(cfg.EmailEndpoint, cfg.EmailAPIKey, cfg.EmailFrom, notify.WithHTTPClient(client))
		default:
			err = fmt.Errorf("unknown notifier %q", driver)
		}
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	switch len(notifiers) {
	case 0:
		return nil, errors.New("no notifier configured")
	case 1:
		return notifiers[0], nil
	default:
		return notify.NewMultiNotifier(notifiers...), nil
	}
}

// Close releases storage handles in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
