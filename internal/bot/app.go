package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/dutybot/core/bootstrap"
	"github.com/m3rciful/dutybot/core/logger"
	coretelegram "github.com/m3rciful/dutybot/core/telegram"
	"github.com/m3rciful/dutybot/core/telegram/router"
	"github.com/m3rciful/dutybot/internal/workflow"
	"log/slog"
)

// App assembles the reporting bot: session store, prompt manager, dialog
// engine and Telegram wiring.
type App struct {
	cfg       *Config
	engine    *workflow.Engine
	presenter *telegramPresenter
	deliverer *channelDeliverer
	registry  *coretelegram.Registry
	db        *sqlx.DB

	// RestartHook, when set, runs after /restart wipes the chat's dialog
	// state. Deployments use it to trigger a process-level restart.
	RestartHook func(ctx context.Context) error
}

// NewApp bootstraps infrastructure and builds the application graph.
func NewApp(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config provided")
	}

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Storage.Postgres,
		WithDatabase: cfg.Storage.Driver == StoragePostgres,
	})
	if err != nil {
		return nil, err
	}

	var store workflow.Store
	switch cfg.Storage.Driver {
	case StoragePostgres:
		store = workflow.NewPGStore(boot.DB)
	default:
		store = workflow.NewMemoryStore()
	}

	presenter := newTelegramPresenter()
	deliverer := newChannelDeliverer(cfg.Report.ChannelID)
	prompts := workflow.NewPromptManager(presenter,
		time.Duration(cfg.Workflow.MenuTTLSeconds)*time.Second)

	engine := workflow.New(workflow.Options{
		Store:     store,
		Prompts:   prompts,
		Deliverer: deliverer,
		Cooldown:  time.Duration(cfg.Workflow.DebounceMS) * time.Millisecond,
		Reviewer:  cfg.Report.Reviewer,
	})

	a := &App{
		cfg:       cfg,
		engine:    engine,
		presenter: presenter,
		deliverer: deliverer,
		db:        boot.DB,
	}
	a.registry = a.buildRegistry()

	logger.Info(context.Background(), "app", "wired",
		slog.String("status", "ok"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("db", cfg.Storage.Driver),
	)
	return a, nil
}

// TelegramRunOptions builds the runtime wiring consumed by the runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoute(&conversationBridge{engine: a.engine}, a.registry, router.TextOptions{}))

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.presenter.bind(rt.Bot, rt.Dispatcher)
			a.deliverer.bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}
