package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/config"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/db"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/events"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/httpserver"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	authmw "github.com/DarkDeveloper-Plant/Anbarinoo/internal/middleware/auth"
	loggingmw "github.com/DarkDeveloper-Plant/Anbarinoo/internal/middleware/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/search"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	ctx := logging.IntoContext(context.Background(), logger)

	key, err := tokens.DeriveSigningKey(cfg.JWT.SecretKey)
	if err != nil {
		logger.Error("signing_key_failed", "error", err)
		os.Exit(1)
	}
	codec, err := tokens.NewCodec(tokens.Config{
		Key:        key,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("codec_init_failed", "error", err)
		os.Exit(1)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("db_init_failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}
	gormRepo := repo.New(gdb)

	var store service.RefreshStore = gormRepo
	var rdb *redis.Client
	if cfg.RefreshStore == config.RefreshStoreRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis_init_failed", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		store = repo.NewRedisRefreshStore(rdb, "", codec.RefreshTTL())
	}
	logger.Info("refresh_store_selected", "store", cfg.RefreshStore)

	var publisher interface {
		service.Publisher
		Close() error
	} = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	catalog := &service.CatalogService{Repo: gormRepo, Events: publisher}
	if cfg.Elastic.URL != "" {
		idx, err := search.NewElasticIndex(search.Config{
			URL:      cfg.Elastic.URL,
			Username: cfg.Elastic.Username,
			Password: cfg.Elastic.Password,
			Index:    cfg.Elastic.Index,
		})
		if err != nil {
			logger.Error("search_init_failed", "error", err)
			os.Exit(1)
		}
		esCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = idx.EnsureIndex(esCtx)
		cancel()
		if err != nil {
			// search falls back to the database while the index is unavailable
			logger.Warn("search_index_not_ready", "error", err)
		}
		catalog.Index = idx
	}

	auth := &service.AuthService{
		Users:         gormRepo,
		Store:         store,
		Codec:         codec,
		Index:         catalog.Index,
		Events:        publisher,
		AdminUsername: cfg.Admin.Username,
	}
	if err := auth.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Error("admin_seed_failed", "error", err)
		os.Exit(1)
	}

	var oauth *httpserver.OAuthHTTP
	if cfg.OAuth2.Enabled() {
		o := cfg.OAuth2
		oauth = &httpserver.OAuthHTTP{
			Bridge: &service.OAuthBridge{
				Auth:             auth,
				Users:            gormRepo,
				AllowedRedirects: o.AuthorizedRedirectURIs,
			},
			Provider:        httpserver.NewOAuth2Provider(o.ClientID, o.ClientSecret, o.AuthURL, o.TokenURL, o.UserInfoURL, o.RedirectURL, o.Scopes),
			Codec:           codec,
			DefaultRedirect: o.DefaultRedirect,
			SecureCookie:    strings.HasPrefix(o.RedirectURL, "https://"),
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  append([]string{echo.HeaderContentType, echo.HeaderAuthorization}, authmw.ExposedHeaders...),
		ExposeHeaders: authmw.ExposedHeaders,
	}))

	httpserver.Register(e, &httpserver.Deps{
		Auth:    &httpserver.AuthHTTP{Svc: auth},
		OAuth:   oauth,
		Catalog: &httpserver.CatalogHTTP{Svc: catalog},
		Ledger:  &httpserver.LedgerHTTP{Svc: &service.LedgerService{Repo: gormRepo, Events: publisher}},
		Authn:   &service.Authenticator{Users: gormRepo, Store: store, Codec: codec},
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx, gdb); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	go func() {
		logger.Info("server_starting", "port", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis_close_failed", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_failed", "error", err)
		}
	}
	logger.Info("shutdown_complete")
}
