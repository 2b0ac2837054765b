// Package app wires the Subscriber State Core's collaborators together:
// the S4 store, the HSS client, the notify pipeline and the Subscriber
// Manager, then exposes a sipgo UA registering the SIP-facing handlers.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/redis/go-redis/v9"

	"github.com/sebas/regcore/internal/regcore/adminapi"
	"github.com/sebas/regcore/internal/regcore/analytics"
	"github.com/sebas/regcore/internal/regcore/config"
	"github.com/sebas/regcore/internal/regcore/events"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/manager"
	"github.com/sebas/regcore/internal/regcore/notify"
	"github.com/sebas/regcore/internal/regcore/s4"
	"github.com/sebas/regcore/internal/regcore/sipadapter"
)

// Core is the assembled registrar: a sipgo server fronting the Subscriber
// Manager via sipadapter handlers, plus a headless admin HTTP API for the
// one operation with no SIP-facing trigger.
type Core struct {
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client
	mgr    *manager.Manager
	admin  *adminapi.Server
}

// NewCore constructs every collaborator from cfg and registers REGISTER/
// SUBSCRIBE handlers on a fresh sipgo server, mirroring the teacher's
// app.NewServer construction order (UA -> Server -> Client -> stores ->
// handlers).
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("app: create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("app: create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("app: create client: %w", err)
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		ua.Close()
		return nil, err
	}

	hssClient := hss.NewHTTPClient(hss.ClientConfig{BaseURL: cfg.HSSEndpoint, Timeout: cfg.HSSTimeout})

	builder := notify.NewBuilder(cfg.SCSCFURI)
	transport := notify.NewSipTransport(client, cfg.NotifyTimeout)
	sender := notify.NewSender(builder, transport, notify.SenderConfig{Concurrency: int64(cfg.NotifyConcurrency)})

	sink, err := buildAnalyticsSink(cfg)
	if err != nil {
		ua.Close()
		return nil, err
	}
	bridge := analytics.NewBridge(sink)

	mgr := manager.New(store, hssClient, sender, bridge, nil, cfg.SCSCFURI)
	mgr.MaxRetries = cfg.MaxRetries

	registerHandler := sipadapter.NewHandler(mgr, cfg.SCSCFURI)
	subscribeHandler := sipadapter.NewSubscribeHandler(mgr)

	srv.OnRequest(sip.REGISTER, func(req *sip.Request, tx sip.ServerTransaction) {
		_ = registerHandler.HandleRegister(req, tx)
	})
	srv.OnRequest(sip.SUBSCRIBE, func(req *sip.Request, tx sip.ServerTransaction) {
		_ = subscribeHandler.HandleSubscribe(req, tx)
	})

	var admin *adminapi.Server
	if cfg.AdminAddr != "" {
		admin = adminapi.NewServer(cfg.AdminAddr, mgr)
	}

	return &Core{ua: ua, srv: srv, client: client, mgr: mgr, admin: admin}, nil
}

// ListenAndServe starts the SIP server and, if configured, the admin HTTP
// API, blocking until ctx is done or a fatal transport error occurs.
func (c *Core) ListenAndServe(ctx context.Context, network, addr string) error {
	if c.admin != nil {
		if err := c.admin.Start(); err != nil {
			return fmt.Errorf("app: start admin api: %w", err)
		}
	}
	return c.srv.ListenAndServe(ctx, network, addr)
}

// Close releases the UA, the admin API and any store holding live
// connections.
func (c *Core) Close() {
	if c.admin != nil {
		_ = c.admin.Stop(context.Background())
	}
	switch store := c.mgr.Store.(type) {
	case *s4.MemoryStore:
		store.Close()
	case *s4.RedisStore:
		_ = store.Close()
	}
	c.ua.Close()
}

func buildStore(ctx context.Context, cfg *config.Config) (s4.Store, error) {
	switch cfg.S4Backend {
	case "redis":
		store, err := s4.NewRedisStore(ctx, s4.RedisStoreConfig{URL: cfg.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("app: build redis S4 store: %w", err)
		}
		return store, nil
	default:
		return s4.NewMemoryStore(s4.MemoryStoreConfig{
			SweepInterval: cfg.BindingSweepInterval,
			OnExpiry:      logExpiry,
		}), nil
	}
}

// logExpiry is the ExpiryHandler passed to the in-memory store: the sweep
// goroutine reports which AoRs it silently mutated, and this core logs it
// under the AoR event subject hierarchy rather than holding a back-pointer
// into the manager (Design Note: "Cyclic references"). The already-mutated
// AoR's post-sweep bindings still carry any survivors' NOTIFY obligations
// on their next natural PATCH; the sweep itself is a best-effort cleanup,
// not a NOTIFY-triggering event in its own right.
func logExpiry(aorID string) {
	slog.Debug("[APP] binding sweep dropped expired state", "subject", events.AoRSubject(aorID, events.SubjectExpired))
}

func buildAnalyticsSink(cfg *config.Config) (analytics.Sink, error) {
	if cfg.AnalyticsSink != "redis" {
		return analytics.NewLogSink(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse analytics redis url: %w", err)
	}
	return analytics.NewRedisSink(redis.NewClient(opts)), nil
}
