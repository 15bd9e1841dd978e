// Package app wires the client components from the resolved configuration.
//
//nolint:funlen // wiring
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/config"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/extension"
	"github.com/xrpracing/racegarage/pkg/gameapi"
	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/lifecycle"
	natspub "github.com/xrpracing/racegarage/pkg/publish/nats"
	"github.com/xrpracing/racegarage/pkg/secrets"
	"github.com/xrpracing/racegarage/pkg/utils"
	"github.com/xrpracing/racegarage/pkg/wallet"
	"github.com/xrpracing/racegarage/pkg/wallet/journal"
)

type (
	App struct {
		Wallet     *wallet.Service
		Controller *lifecycle.Controller
		API        *gameapi.Client
		Economics  config.Economics

		journal   *journal.Store
		ledger    *ledger.WSClient
		telemetry *config.Telemetry
		closers   []func()
	}
	Option func(*setup)
	setup  struct {
		needBackend bool
	}
)

// WithBackend makes Setup wait for the backend and check its version.
func WithBackend() Option {
	return func(s *setup) {
		s.needBackend = true
	}
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger installs the default logger according to the log flags.
func SetupLogger() {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogFilter != "" {
		if f, err := log.WithFilter(config.LogFilter); err == nil {
			opts = append(opts, f)
		} else {
			fmt.Fprintf(os.Stderr, "invalid log filter %q: %v\n", config.LogFilter, err)
		}
	}
	var logger *log.Logger
	if config.LogFormat == "json" {
		logger = log.New(os.Stderr, parseLogLevel(config.LogLevel, log.InfoLevel), opts...)
	} else {
		logger = log.DevLogger(os.Stderr, parseLogLevel(config.LogLevel, log.WarnLevel), opts...)
	}
	log.ResetDefault(logger)
}

// Context returns a context cancelled on SIGINT/SIGTERM.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Setup creates all components and restores a remembered wallet session.
func Setup(ctx context.Context, opts ...Option) (*App, error) {
	s := &setup{}
	for _, opt := range opts {
		opt(s)
	}
	ret := &App{Economics: config.EconomicsFromFlags()}
	if config.EnableTelemetry {
		log.Debug("Enabling telemetry")
		if t, err := config.SetupTelemetry(ctx); err == nil {
			ret.telemetry = t
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
	}

	journalPath, err := expandHome(config.JournalPath)
	if err != nil {
		return nil, err
	}
	if ret.journal, err = journal.Open(journalPath); err != nil {
		return nil, err
	}
	ret.closers = append(ret.closers, func() { _ = ret.journal.Close() })

	requestTimeout := config.ParseDuration(config.RequestTimeout, gameapi.DefaultTimeout)
	ret.ledger = ledger.NewWSClient(config.LedgerURL,
		ledger.WithFaucetURL(config.FaucetURL),
		ledger.WithRequestTimeout(requestTimeout),
		ledger.WithValidationTimeout(config.ParseDuration(config.ValidationTimeout, time.Minute)),
	)
	ret.closers = append(ret.closers, func() { _ = ret.ledger.Close() })

	fallback, err := expandHome(config.SecretsFallback)
	if err != nil {
		return nil, err
	}
	ret.Wallet = wallet.NewService(ret.ledger,
		wallet.WithExtension(extension.NewBridge(config.ExtensionURL)),
		wallet.WithServiceJournal(ret.journal),
		wallet.WithSessionStore(ret.journal),
		wallet.WithSeedStore(secrets.NewSeedStore(config.KeyringService, fallback)),
		wallet.WithEconomics(ret.Economics),
	)
	if _, err = ret.Wallet.Restore(ctx); err != nil && !errors.Is(err, errs.ErrNoWalletLoaded) {
		log.Warn("could not restore wallet session", log.ErrorField(err))
	}

	ret.API = gameapi.NewClient(config.BackendURL,
		gameapi.WithPrefix(config.APIPrefix),
		gameapi.WithTimeout(requestTimeout))
	if s.needBackend {
		if err = ret.checkBackend(ctx); err != nil {
			ret.Close()
			return nil, err
		}
	}

	pool := config.DefaultOpponents()
	if config.OpponentsFile != "" {
		if pool, err = config.LoadOpponents(config.OpponentsFile); err != nil {
			ret.Close()
			return nil, err
		}
	}
	ret.Controller = lifecycle.NewController(ret.API, ret.Wallet,
		lifecycle.WithEconomics(ret.Economics),
		lifecycle.WithField(config.FieldFromFlags()),
		lifecycle.WithOpponents(pool),
		lifecycle.WithSelectionStore(ret.journal),
	)
	ret.closers = append(ret.closers, ret.Controller.Close)
	ret.startPublisher(ctx)
	return ret, nil
}

func (a *App) checkBackend(ctx context.Context) error {
	wait := config.ParseDuration(config.WaitForServices, 0)
	if wait > 0 {
		if err := utils.WaitForHTTPResponse(ctx, config.BackendURL+"/health", wait); err != nil {
			return fmt.Errorf("backend not ready: %w", err)
		}
	}
	h, err := a.API.Health(ctx)
	if err != nil {
		return err
	}
	if err = utils.CheckBackendVersion(h.Version, config.MinBackendVersion); err != nil {
		return err
	}
	if !h.TestnetConnected {
		log.Warn("backend is not connected to the testnet", log.String("network", h.Network))
	}
	log.Debug("backend ready", log.String("version", h.Version), log.String("status", h.Status))
	return nil
}

func (a *App) startPublisher(ctx context.Context) {
	if config.NatsURL == "" {
		return
	}
	conn, err := natspub.Connect(config.NatsURL, 5*time.Second)
	if err != nil {
		log.Warn("race outcomes will not be published", log.ErrorField(err))
		return
	}
	addr := ""
	if sess := a.Wallet.Session(); sess != nil {
		addr = sess.Address()
	}
	p := natspub.NewPublisher(conn, natspub.WithSubject(config.NatsSubject), natspub.WithAddress(addr))
	events := a.Controller.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, events)
	}()
	// the controller closes the event channel, the publisher flushes before the
	// connection is closed
	a.closers = append(a.closers, func() {
		a.Controller.Close()
		<-done
		conn.Close()
	})
}

// Close releases all resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.telemetry != nil {
		a.telemetry.Shutdown()
	}
	_ = log.Default().Sync()
}

// RequireSession returns the active wallet session.
func (a *App) RequireSession() (*wallet.Session, error) {
	sess := a.Wallet.Session()
	if sess == nil {
		return nil, errs.ErrNoWalletLoaded
	}
	return sess, nil
}

func expandHome(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}
