package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tweetor-social/tweetor/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "tweetor",
		Usage:   "micro-blogging service with content moderation",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"TWEETOR_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			Value:   "json",
			EnvVars: []string{"TWEETOR_LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/tweetor/tweetor.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		migrateCmd,
		pruneCaptchasCmd,
	}

	return app.Run(args)
}

func openDatabase(dburl string, maxConnections int, trace bool, logger *slog.Logger) (*gorm.DB, error) {
	db, err := cliutil.SetupDatabase(dburl, maxConnections, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up database: %w", err)
	}
	if trace {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("enabling query tracing: %w", err)
		}
	}
	return db, nil
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":8000",
			EnvVars: []string{"TWEETOR_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":8001",
			EnvVars: []string{"TWEETOR_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"TWEETOR_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:     "session-secret",
			Usage:    "secret used to sign session cookies",
			Required: true,
			EnvVars:  []string{"TWEETOR_SESSION_SECRET", "SESSION_SECRET"},
		},
		&cli.StringSliceFlag{
			Name:    "staff-handles",
			Usage:   "handles granted staff privileges at startup",
			Value:   cli.NewStringSlice("admin"),
			EnvVars: []string{"TWEETOR_STAFF_HANDLES"},
		},
		&cli.StringFlag{
			Name:    "classifier",
			Usage:   "content classifier backend: sightengine or keyword",
			Value:   "sightengine",
			EnvVars: []string{"TWEETOR_CLASSIFIER"},
		},
		&cli.StringFlag{
			Name:    "sightengine-user",
			EnvVars: []string{"SIGHTENGINE_API_USER"},
		},
		&cli.StringFlag{
			Name:    "sightengine-secret",
			EnvVars: []string{"SIGHTENGINE_API_SECRET", "SIGHT_ENGINE_SECRET"},
		},
		&cli.StringFlag{
			Name:    "sightengine-host",
			Value:   "https://api.sightengine.com",
			EnvVars: []string{"SIGHTENGINE_HOST"},
		},
		&cli.StringFlag{
			Name:    "keyword-sets-file",
			Usage:   "JSON file of named keyword sets, one per moderation category",
			EnvVars: []string{"TWEETOR_KEYWORD_SETS_FILE"},
		},
		&cli.StringSliceFlag{
			Name:    "moderation-categories",
			Value:   cli.NewStringSlice("drug", "medical", "extremism", "weapon"),
			EnvVars: []string{"TWEETOR_MODERATION_CATEGORIES"},
		},
		&cli.StringFlag{
			Name:    "fail-policy",
			Usage:   "verdict when the classifier is unavailable: fail-open or fail-closed",
			Value:   "fail-open",
			EnvVars: []string{"TWEETOR_FAIL_POLICY"},
		},
		&cli.IntFlag{
			Name:    "classifier-retries",
			Usage:   "additional classifier attempts after a transient failure",
			Value:   0,
			EnvVars: []string{"TWEETOR_CLASSIFIER_RETRIES"},
		},
		&cli.DurationFlag{
			Name:    "classifier-timeout",
			Value:   10 * time.Second,
			EnvVars: []string{"TWEETOR_CLASSIFIER_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the verdict cache; in-process cache if unset",
			EnvVars: []string{"TWEETOR_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "verdict-cache-ttl",
			Value:   time.Hour,
			EnvVars: []string{"TWEETOR_VERDICT_CACHE_TTL"},
		},
		&cli.StringSliceFlag{
			Name:    "media-prefixes",
			Usage:   "allowed media link prefixes",
			Value:   cli.NewStringSlice("https://media.tenor.com/"),
			EnvVars: []string{"TWEETOR_MEDIA_PREFIXES"},
		},
		&cli.BoolFlag{
			Name:    "store-orphan-reposts",
			Usage:   "store an empty post when a repost references a missing post",
			EnvVars: []string{"TWEETOR_STORE_ORPHAN_REPOSTS"},
		},
		&cli.Int64Flag{
			Name:    "submit-rate-limit",
			Usage:   "max post and direct message submissions per minute, per account",
			Value:   4,
			EnvVars: []string{"TWEETOR_SUBMIT_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "captcha-ttl",
			Value:   30 * time.Minute,
			EnvVars: []string{"TWEETOR_CAPTCHA_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		db, err := openDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"), cctx.Bool("db-tracing"), logger)
		if err != nil {
			return err
		}

		moderator, err := buildModerator(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer moderator.Close()

		srv, err := NewServer(db, moderator, ServerConfig{
			Logger:             logger,
			BindAddr:           cctx.String("bind"),
			SessionSecret:      cctx.String("session-secret"),
			StaffHandles:       cctx.StringSlice("staff-handles"),
			MediaPrefixes:      cctx.StringSlice("media-prefixes"),
			StoreOrphanReposts: cctx.Bool("store-orphan-reposts"),
			SubmitRateLimit:    cctx.Int64("submit-rate-limit"),
			CaptchaTTL:         cctx.Duration("captcha-ttl"),
			Registerer:         prometheus.DefaultRegisterer,
		})
		if err != nil {
			return fmt.Errorf("failed to construct server: %w", err)
		}

		// prometheus HTTP endpoint: /metrics
		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		return srv.Run(ctx)
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create or update the database schema, then exit",
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		// SetupDatabase migrates as part of opening
		if _, err := cliutil.SetupDatabase(cctx.String("database-url"), 1, logger); err != nil {
			return err
		}
		logger.Info("database schema up to date")
		return nil
	},
}

var pruneCaptchasCmd = &cli.Command{
	Name:  "prune-captchas",
	Usage: "delete captcha tokens older than the given age, then exit",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "older-than",
			Value: 30 * time.Minute,
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		db, err := cliutil.SetupDatabase(cctx.String("database-url"), 1, logger)
		if err != nil {
			return err
		}
		n, err := newCaptchaStore(db, cctx.Duration("older-than"), logger).Prune(cctx.Context, cctx.Duration("older-than"))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d captcha tokens\n", n)
		return nil
	},
}
