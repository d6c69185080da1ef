package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"push-device-service/internal/auth"
	"push-device-service/internal/config"
	"push-device-service/internal/devicehandler"
	"push-device-service/internal/hub"
	"push-device-service/internal/jobs"
	"push-device-service/internal/logging"
	"push-device-service/internal/middleware"
	"push-device-service/internal/server"
	"push-device-service/internal/service"
	"push-device-service/internal/store"
	"push-device-service/internal/userstore"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, restore, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Dev: cfg.Log.Dev})
	if err != nil {
		log.Fatal(err)
	}

	err = run(cfg)
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
	restore()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	st, err := store.Open(store.Options{
		Driver:      cfg.StoreDriver,
		StateFile:   cfg.StoreStateFile,
		BoltPath:    cfg.BoltPath,
		DatabaseDSN: cfg.DatabaseDSN,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := openUserStore(cfg)
	if err != nil {
		return err
	}

	janitor, err := jobs.NewJanitor(st, cfg.JanitorSchedule)
	if err != nil {
		return err
	}

	events := hub.New()
	handler := devicehandler.New(st, users, events, devicehandler.Config{
		Host:         cfg.PublicHost,
		BasePath:     cfg.BasePath,
		ChallengeTTL: cfg.ChallengeTTL,
	})
	limiter := middleware.NewRateLimiter(cfg.MobileRateLimit, time.Minute)
	defer limiter.Close()

	router := server.NewRouter(server.Deps{
		Service: service.New(handler, nil),
		Hub:     events,
		Users:   users,
		TokenConfig: auth.TokenConfig{
			Secret: cfg.MasterSecret,
			Expiry: cfg.TokenExpiry,
			Issuer: cfg.TokenIssuer,
		},
		BasePath:       cfg.BasePath,
		TenantDomain:   cfg.TenantDomain,
		MobileLimiter:  limiter,
		TrustedProxies: cfg.TrustedProxies,
		Version:        version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("starting push device service",
		zap.String("version", version),
		zap.String("store", cfg.StoreDriver),
		zap.String("userStore", cfg.UserStoreDriver))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, cfg, router) })
	g.Go(func() error { return janitor.Run(ctx) })
	return g.Wait()
}

func openUserStore(cfg config.Config) (userstore.Store, error) {
	if cfg.UserStoreDriver == "ldap" {
		return userstore.NewLDAP(userstore.LDAPConfig{
			URL:          cfg.LDAP.URL,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
			UserFilter:   cfg.LDAP.UserFilter,
		}), nil
	}
	return userstore.LoadStatic(cfg.UsersFile)
}
