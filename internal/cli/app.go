package cli

import (
	"log/slog"
	"os"

	"github.com/giftkeep/giftkeep/internal/auth"
	"github.com/giftkeep/giftkeep/internal/config"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/notify"
	"github.com/giftkeep/giftkeep/internal/purchase"
	"github.com/giftkeep/giftkeep/internal/restore"
	"github.com/giftkeep/giftkeep/internal/safety"
	"github.com/giftkeep/giftkeep/internal/snapshot"
	"github.com/giftkeep/giftkeep/internal/store"
)

// app bundles the wired control plane for command handlers.
type app struct {
	cfg      config.Config
	store    *store.Store
	ledger   *ledger.Ledger
	exporter *snapshot.Exporter
	engine   *restore.Engine
	sw       *safety.Switch
	gate     *purchase.Gate
	notifier *notify.Notifier
	tokens   *auth.TokenParser
}

// openApp loads configuration, opens the store, and wires every component.
// Callers must Close().
func openApp(opts *RootOptions) (*app, error) {
	configureLogging(opts)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	l := ledger.New(st.DB(), nil)
	n := notify.New(st.DB(), nil)
	return &app{
		cfg:      cfg,
		store:    st,
		ledger:   l,
		exporter: snapshot.NewExporter(st, l, nil),
		engine:   restore.NewEngine(st, l, auth.NewVerifier(cfg.AdminCredentialHash)),
		sw:       safety.New(st, l, n, nil),
		gate:     purchase.NewGate(st, l, n, nil),
		notifier: n,
		tokens:   auth.NewTokenParser(cfg.JWTSecret),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func configureLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
