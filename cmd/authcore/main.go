package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rutapp/authcore"
	"github.com/rutapp/authcore/database"
	"github.com/rutapp/authcore/mailer"
	"github.com/rutapp/authcore/profile"
	"go.uber.org/zap"
)

const usage = `usage: authcore <command> [flags]

commands:
  migrate    create the auth, mapping and profile tables
  smoke      run register, verify, login, refresh and logout once
  loadtest   measure access validation and refresh rotation under load`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// best-effort: a missing .env leaves the real environment in charge
	_ = godotenv.Load()

	cfg, err := loadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "migrate":
		err = runMigrate(ctx, cfg, lg)
	case "smoke":
		err = runSmoke(ctx, cfg, lg)
	case "loadtest":
		err = runLoadtest(ctx, cfg, lg, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		lg.Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg envConfig, lg *zap.Logger) error {
	db, err := database.Open(ctx, cfg.database())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := profile.NewSQLStore(db, nil).EnsureSchema(ctx); err != nil {
		return err
	}
	if err := authcore.EnsureSchema(ctx, db); err != nil {
		return err
	}
	lg.Info("schema ready", zap.String("driver", cfg.DBDriver))
	return nil
}

// runtime bundles an engine with the resources it was built on.
type runtime struct {
	engine   *authcore.Engine
	mail     *mailer.Recorder
	closeFns []func()
}

func (r *runtime) Close() {
	for i := len(r.closeFns) - 1; i >= 0; i-- {
		r.closeFns[i]()
	}
}

// newRuntime builds an engine for smoke and loadtest. Mail goes to an
// in-memory recorder so codes and links can be read back; with
// AUTHCORE_REVEAL_MAIL the log mailer is used instead.
func newRuntime(ctx context.Context, cfg envConfig, lg *zap.Logger) (*runtime, error) {
	rt := &runtime{mail: &mailer.Recorder{}}

	engineCfg, err := cfg.engineConfig(true)
	if err != nil {
		return nil, err
	}

	client, cleanup, err := newRedis(cfg, lg)
	if err != nil {
		return nil, err
	}
	rt.closeFns = append(rt.closeFns, cleanup)

	db, err := database.Open(ctx, cfg.database())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closeFns = append(rt.closeFns, func() { _ = db.Close() })

	profiles := profile.NewSQLStore(db, nil)
	if err := profiles.EnsureSchema(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var mail authcore.Mailer = rt.mail
	if cfg.RevealMail {
		mail = mailer.NewLogMailer(lg, true)
	}

	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithDB(db).
		WithProfileStore(profiles).
		WithMailer(mail).
		WithAuditSink(authcore.NewZapAuditSink(lg)).
		WithLogger(lg).
		Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	rt.closeFns = append(rt.closeFns, engine.Close)

	if err := engine.EnsureSchema(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func newRedis(cfg envConfig, lg *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		lg.Info("using embedded miniredis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lg.Info("using redis", zap.String("addr", cfg.RedisAddr))
	return client, func() { _ = client.Close() }, nil
}

var errNoMail = errors.New("expected message not recorded; unset AUTHCORE_REVEAL_MAIL")
