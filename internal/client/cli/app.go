package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/authbridge/internal/client/client"
	"github.com/dmitrijs2005/authbridge/internal/client/config"
	"github.com/dmitrijs2005/authbridge/internal/client/services"
	"github.com/dmitrijs2005/authbridge/internal/client/session"
	"github.com/dmitrijs2005/authbridge/internal/client/store"
	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	reader      *bufio.Reader
	out         io.Writer
	db          *sql.DB
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stderr, "warn")

	db, err := store.OpenInDir(ctx, c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	local := store.New(db)

	bridge, err := client.New(c.ServerURL, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	factory, err := provider.NewFactory(provider.Config{URL: c.ProviderURL, AnonKey: c.AnonKey})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rt := session.NewRuntime(func() *session.Store {
		return session.NewStore(local, bridge, logger, session.Options{
			PollAttempts: c.SessionPollAttempts,
			PollInterval: c.SessionPollInterval,
		})
	})

	as := services.NewAuthService(bridge, factory.Browser(), local, rt, logger)

	return &App{
		config:      c,
		authService: as,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		db:          db,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.close(ctx)

	printlnFn("Welcome to authbridge CLI (type 'help' for commands)")
	if err := a.authService.Ping(ctx); err != nil {
		printlnFn("Warning: server unreachable, only local commands will work")
	}

	runREPL(ctx, a, func() string { return a.getStatus(ctx) }, a.reader)
}

func (a *App) close(ctx context.Context) {
	_ = a.authService.Close(ctx)
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) isLoggedIn(ctx context.Context) bool {
	return a.authService.SignedIn(ctx)
}

func (a *App) getStatus(ctx context.Context) string {
	if a.isLoggedIn(ctx) {
		return "signed in"
	}
	return "signed out"
}
