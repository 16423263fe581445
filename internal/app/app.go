package app

import (
	"context"
	"fmt"
	"strings"

	"schedbot/internal/bot"
	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/memwatch"
	"schedbot/internal/renderer"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	"schedbot/internal/scrape"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	adapter kit.Adapter
	pool    *renderer.Pool
	scraper *scrape.Orchestrator
	svc     *schedule.Service
	mon     *memwatch.Monitor
	memOn   bool
	bot     *bot.Bot
	router  *router.Router

	updates chan kit.Update
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	adapter  kit.Adapter
	launcher renderer.Launcher
	env      config.LookupFunc
	sampler  memwatch.Sampler
}

// WithAdapter replaces the Telegram adapter.
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithLauncher replaces the Chrome launcher used to fill the renderer pool.
func WithLauncher(l renderer.Launcher) Option { return func(o *options) { o.launcher = l } }

func WithEnv(lookup config.LookupFunc) Option { return func(o *options) { o.env = lookup } }

func WithSampler(s memwatch.Sampler) Option { return func(o *options) { o.sampler = s } }

// New loads the config and builds every component. The renderer pool is
// warmed here, so New blocks until the browsers are up and fails with
// renderer.ErrPoolExhausted when none start.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	if o.env != nil {
		cfgm.SetEnv(o.env)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: set.PollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	ok := false
	defer func() {
		if !ok {
			a.closePartial()
		}
	}()

	sc := mapStorageConfig(cfg, set)
	a.store, err = storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	launcher := o.launcher
	if launcher == nil {
		launcher = mapLauncher(cfg, logSvc.Logger().With(logx.String("comp", "renderer")))
	}
	a.pool, err = renderer.New(ctx, renderer.Config{Size: set.PoolSize, LaunchTimeout: set.LaunchTimeout}, launcher, logSvc.Logger())
	if err != nil {
		return nil, err
	}

	a.scraper = scrape.New(mapScrapeConfig(cfg, set), logSvc.Logger())

	svcOpts := []schedule.Option{
		schedule.WithLogger(logSvc.Logger()),
		schedule.WithBus(a.bus),
	}
	if o.sampler != nil {
		svcOpts = append(svcOpts, schedule.WithSampler(o.sampler))
	}
	a.svc = schedule.NewService(mapScheduleConfig(set), a.pool, a.scraper, svcOpts...)
	a.mon = memwatch.New(mapMemoryConfig(set), o.sampler, a.svc.Cache(), a.bus, logSvc.Logger())
	a.memOn = set.MemoryEnabled

	a.bot = bot.New(a.svc, a.store, bot.Options{SupportedGroups: set.SupportedGroups}, logSvc.Logger())
	a.router = router.New(bot.RouterConfig(set.TelegramWorkers, set.HandlerTimeout), ad, logSvc.Logger())
	a.router.SetRegistry(a.bot.Commands(), a.bot.Callbacks(), a.bot.HandleText)

	ok = true
	return a, nil
}

// closePartial releases what New managed to open before failing.
func (a *App) closePartial() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStepMax)
	defer cancel()
	if a.pool != nil {
		a.pool.Shutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Service exposes the schedule service.
func (a *App) Service() *schedule.Service { return a.svc }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(validateReload)

	a.svc.Start(a.sup.Context())
	if a.memOn {
		a.mon.Start(a.sup.Context())
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		if err := a.router.PublishMenu(c); err != nil {
			a.log.Warn("command menu not published", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("browsers", a.pool.Size()),
		logx.Bool("memory_monitor", a.memOn),
	)
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
	switch d := e.Data.(type) {
	case schedule.FetchEvent:
		fields = append(fields, logx.String("key", d.Key.String()), logx.String("rid", d.RID))
		if d.Err != nil {
			fields = append(fields, logx.Err(d.Err))
		}
	case memwatch.Result:
		fields = append(fields, logx.Float64("ratio", d.Ratio), logx.Int("evicted", d.Evicted))
	}
	a.log.Debug("event", fields...)
}

// validateReload rejects reloads that would leave the running bot unusable.
func validateReload(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: must not be empty")
	}
	_, err := config.Resolve(cfg)
	return err
}
