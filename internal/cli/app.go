package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/botrelay/internal/agents"
	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/facade"
	"github.com/soyeahso/botrelay/internal/gateway"
	"github.com/soyeahso/botrelay/internal/history"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/plugin"
	"github.com/soyeahso/botrelay/internal/reqctx"
	"github.com/soyeahso/botrelay/internal/store"
	"github.com/soyeahso/botrelay/internal/stream"
)

// app is the fully wired relay behind `botrelay serve`.
type app struct {
	cfg config.Config
	log *logging.Logger

	closers     []io.Closer
	history     history.Provider
	checkpoints pipeline.CheckpointStore

	hub     *stream.Hub
	bus     *stream.Bus
	relay   *stream.Relay
	configs *chatconfig.Cache
	hooks   *hooks.Manager
	plugins *plugin.Registry
	engine  *pipeline.Engine
	server  *gateway.Server

	dispatch bool
}

// openStores returns the history and checkpoint stores for cfg. The closer
// is nil for the memory driver.
func openStores(cfg config.StoreConfig, p config.Paths, log *logging.Logger) (history.Provider, pipeline.CheckpointStore, io.Closer, error) {
	switch cfg.Driver {
	case "memory":
		return history.NewMemory(), pipeline.NewMemoryStore(), nil, nil
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = p.Database()
		}
		db, err := store.Open(path, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", path).Msg("using SQLite store")
		return store.NewHistory(db), store.NewCheckpoints(db), db, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newApp(ctx context.Context, cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx, p); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, p config.Paths) error {
	cfg, log := a.cfg, a.log

	hist, cp, db, err := openStores(cfg.Store, p, log)
	if err != nil {
		return err
	}
	a.history, a.checkpoints = hist, cp
	if db != nil {
		a.closers = append(a.closers, db)
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	if client == nil {
		log.Warn().Msg("no llm provider configured, completion orchestrators and agents are unavailable")
	}

	dir := cfg.ChatConfigs.Dir
	if dir == "" {
		dir = p.ChatConfigs
	}
	a.configs = chatconfig.NewCache(chatconfig.ChainSource{
		chatconfig.FileSource{Dir: dir},
		chatconfig.MapSource(cfg.ChatConfigs.Inline),
	}, log)

	a.hub = stream.NewHub(log)
	a.bus, err = stream.NewBus(ctx, cfg.Stream, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.bus)
	if cfg.Stream.Mode == "bus" {
		a.relay = stream.NewRelay(a.bus, cfg.Stream.Topic, a.hub, log)
	}

	orchs := orchestrator.NewRegistry(orchestrator.Deps{LLM: client, Log: log})
	agentReg := agents.NewRegistry(client, log)
	a.configs.OnRefresh(func() {
		orchs.Reset()
		agentReg.Reset()
	})

	a.hooks = hooks.NewManager(log)
	a.plugins = plugin.NewRegistry(plugin.API{Hooks: a.hooks, Orchestrators: orchs, Agents: agentReg}, log)
	for _, pl := range []plugin.Plugin{plugin.EventLog(), plugin.CommandHooks(cfg.Hooks)} {
		if err := a.plugins.Register(pl); err != nil {
			return err
		}
	}
	if err := a.plugins.InitAll(ctx); err != nil {
		return fmt.Errorf("initializing plugins: %w", err)
	}

	fdeps := facade.Deps{
		Streams:       stream.NewFactory(cfg.Stream, a.hub, a.bus, log),
		Orchestrators: orchs,
		Configs:       a.configs,
		Agents:        agentReg,
		Hooks:         a.hooks,
		Log:           log,
	}

	opts := []pipeline.Option{pipeline.WithHooks(a.hooks)}
	// instances go over the bus only when it is shared between replicas
	if cfg.Stream.Bus == "redis" {
		if err := stream.EnsureRedisGroup(ctx, cfg.Stream, cfg.Pipeline.Topic); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithDispatch(a.bus.Publisher, a.bus.Workers, cfg.Pipeline.Topic))
		a.dispatch = true
	}
	a.engine = pipeline.NewEngine(a.checkpoints, log, opts...)
	facade.Steps{
		Deps:    fdeps,
		Session: reqctx.Deps{Configs: a.configs, History: a.history, Log: log},
	}.Register(a.engine, cfg.Pipeline)

	a.server = gateway.New(cfg.Gateway, log, gateway.Deps{
		Facade:        fdeps,
		History:       a.history,
		Hub:           a.hub,
		Pipeline:      a.engine,
		Orchestrators: orchs,
	})
	return nil
}

// run serves until ctx is cancelled. Unfinished pipeline instances from a
// previous run are resumed first.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.configs.Run(ctx, time.Duration(a.cfg.ChatConfigs.RefreshSeconds)*time.Second)
		return nil
	})
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(ctx) })
	}
	if a.dispatch {
		g.Go(func() error { return a.engine.Run(ctx) })
	}

	if n, err := a.engine.Resume(ctx); err != nil {
		a.log.Warn().Err(err).Msg("resuming pipeline instances")
	} else if n > 0 {
		a.log.Info().Int("instances", n).Msg("resumed unfinished pipelines")
	}

	g.Go(func() error { return a.server.Start(ctx) })

	err := g.Wait()
	a.engine.Wait()
	return err
}

// Close releases plugins, the bus and the database.
func (a *app) Close() {
	if a.plugins != nil {
		a.plugins.CloseAll()
	}
	a.hooks.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing")
		}
	}
	a.closers = nil
}
