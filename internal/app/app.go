// Package app wires the chatroom's services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/sessions"
	"github.com/nfrund/chatroom/internal/chat"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/database"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/presence"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/session"
	"github.com/nfrund/chatroom/internal/websocket"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// App holds the long-lived services of one server process.
type App struct {
	Injector do.Injector

	Config      config.Provider
	Store       domain.Store
	Sessions    sessions.Store
	Registry    *presence.Registry[*websocket.Client]
	Broadcaster *websocket.Broadcaster
	Lifecycle   *websocket.Lifecycle
	Bus         *pubsub.WatermillBridge
	Chat        *chat.Service
	Socket      *websocket.Handler

	subscriber *chat.Subscriber
	cancel     context.CancelFunc
	closers    []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New builds every service from cfg. Only a failure to open the store or the
// session backend is returned; the caller treats it as fatal.
func New(ctx context.Context, cfg config.Provider) (*App, error) {
	a := &App{Injector: do.New(), Config: cfg}
	i := a.Injector

	do.ProvideValue(i, cfg)
	do.Provide(i, a.provideStore)
	do.Provide(i, a.provideSessions)
	do.Provide(i, a.provideTracer)
	do.Provide(i, provideBus)
	do.Provide(i, provideRegistry)
	do.Provide(i, provideBroadcaster)
	do.Provide(i, provideLifecycle)
	do.Provide(i, provideChat)
	do.Provide(i, provideSocket)

	var err error
	if a.Store, err = do.Invoke[domain.Store](i); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if a.Sessions, err = do.Invoke[sessions.Store](i); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if a.Bus, err = do.Invoke[*pubsub.WatermillBridge](i); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("start message bus: %w", err)
	}

	a.Registry = do.MustInvoke[*presence.Registry[*websocket.Client]](i)
	a.Broadcaster = do.MustInvoke[*websocket.Broadcaster](i)
	a.Lifecycle = do.MustInvoke[*websocket.Lifecycle](i)
	a.Chat = do.MustInvoke[*chat.Service](i)
	a.Socket = do.MustInvoke[*websocket.Handler](i)
	a.subscriber = chat.NewSubscriber(a.Bus, a.Chat, a.Broadcaster)
	return a, nil
}

func (a *App) provideStore(i do.Injector) (domain.Store, error) {
	ctx := context.Background()
	store, err := database.Open(ctx, do.MustInvoke[config.Provider](i))
	if err != nil {
		return nil, err
	}
	a.onClose("store", store.Close)
	return store, nil
}

func (a *App) provideSessions(i do.Injector) (sessions.Store, error) {
	store, closeFn, err := session.NewStore(context.Background(), do.MustInvoke[config.Provider](i))
	if err != nil {
		return nil, err
	}
	a.onClose("sessions", func(context.Context) error { return closeFn() })
	return store, nil
}

func (a *App) provideTracer(i do.Injector) (trace.Tracer, error) {
	cfg := do.MustInvoke[config.Provider](i)
	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfig{
		Enabled:     cfg.GetTracingEnabled(),
		ServiceName: cfg.GetTracingServiceName(),
		ZipkinURL:   cfg.GetTracingZipkinURL(),
	})
	if err != nil {
		return nil, err
	}
	a.onClose("tracing", func(context.Context) error { cleanup(); return nil })
	return tracer, nil
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	tracer, err := do.Invoke[trace.Tracer](i)
	if err != nil {
		return nil, err
	}
	return pubsub.NewWatermillBridge(pubsub.WithTracer(tracer)), nil
}

func provideRegistry(do.Injector) (*presence.Registry[*websocket.Client], error) {
	return presence.NewRegistry[*websocket.Client](), nil
}

func provideBroadcaster(i do.Injector) (*websocket.Broadcaster, error) {
	return websocket.NewBroadcaster(do.MustInvoke[*presence.Registry[*websocket.Client]](i)), nil
}

func provideLifecycle(i do.Injector) (*websocket.Lifecycle, error) {
	return websocket.NewLifecycle(
		do.MustInvoke[*presence.Registry[*websocket.Client]](i),
		do.MustInvoke[domain.Store](i),
		do.MustInvoke[*websocket.Broadcaster](i),
	), nil
}

func provideChat(i do.Injector) (*chat.Service, error) {
	return chat.NewService(do.MustInvoke[domain.Store](i), do.MustInvoke[*websocket.Broadcaster](i)), nil
}

func provideSocket(i do.Injector) (*websocket.Handler, error) {
	cfg := do.MustInvoke[config.Provider](i)
	resolver := session.NewResolver(cfg.GetSessionName(),
		session.NewStoreLookup(do.MustInvoke[sessions.Store](i), cfg.GetSessionName()))

	return websocket.NewHandler(
		resolver,
		do.MustInvoke[*websocket.Lifecycle](i),
		do.MustInvoke[*websocket.Broadcaster](i),
		do.MustInvoke[*pubsub.WatermillBridge](i),
		websocket.HandlerOptions{
			SendBuffer:     cfg.GetWSSendBuffer(),
			WriteTimeout:   cfg.GetWSWriteTimeout(),
			OriginPatterns: originPatterns(cfg.GetAppBaseURL()),
		},
	), nil
}

// originPatterns allows the public base URL's host to open sockets in
// addition to the request host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// Start launches the background consumers. They stop when Shutdown runs.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if err := a.subscriber.Start(ctx); err != nil {
		return fmt.Errorf("start chat subscriber: %w", err)
	}
	return nil
}

// Shutdown closes live sockets first so their offline transitions reach the
// store, then releases the bus and the backends.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Lifecycle.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connections: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	errs = append(errs, a.close(ctx))
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// close runs the registered closers in reverse order.
func (a *App) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			slog.Error("Failed to close resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
