package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/castmod/castmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
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
		Name:    "castmod",
		Usage:   "channel moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "social-api-host",
			Usage:   "method, hostname, and port of the social network API",
			Value:   "https://api.warpcast.com",
			EnvVars: []string{"CASTMOD_SOCIAL_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "social-api-key",
			Usage:   "API key for hiding casts and inviting members",
			EnvVars: []string{"CASTMOD_SOCIAL_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "social-rate-limit",
			Usage:   "max number of requests per second to the social network API",
			Value:   20,
			EnvVars: []string{"CASTMOD_SOCIAL_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"CASTMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			EnvVars: []string{"CASTMOD_LOG_FMT", "LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/castmod/castmod.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"CASTMOD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"CASTMOD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters, caches, and flags; in-process stores are used if not set",
			EnvVars: []string{"CASTMOD_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets (eg, the banned list)",
			EnvVars: []string{"CASTMOD_SETS_JSON_PATH"},
		},
		&cli.StringSliceFlag{
			Name:    "rpc-url",
			Usage:   "EVM JSON-RPC endpoint per chain, as chain=url (repeatable)",
			EnvVars: []string{"CASTMOD_RPC_URLS"},
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "shared secret sent to webhook rule endpoints",
			EnvVars: []string{"CASTMOD_WEBHOOK_SECRET"},
		},
		&cli.DurationFlag{
			Name:    "check-timeout",
			Usage:   "default bound on a single rule check",
			EnvVars: []string{"CASTMOD_CHECK_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:     "api-key",
			Usage:    "secret required from event sources calling the evaluate endpoints",
			Required: true,
			EnvVars:  []string{"CASTMOD_API_KEY"},
		},
		&cli.StringFlag{
			Name:     "jwt-secret",
			Usage:    "HS256 secret for moderator session tokens",
			Required: true,
			EnvVars:  []string{"CASTMOD_JWT_SECRET"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "how often expired cooldowns are ended",
			Value:   defaultSweepInterval,
			EnvVars: []string{"CASTMOD_SWEEP_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		if err != nil {
			return err
		}

		tracingEnabled := configOTEL("castmod")

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-metadb-connections"))
		if err != nil {
			return err
		}
		if tracingEnabled {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return err
			}
		}

		srv, err := NewServer(
			db,
			Config{
				Logger:          logger,
				Bind:            cctx.String("bind"),
				RedisURL:        cctx.String("redis-url"),
				SetsFileJSON:    cctx.String("sets-json-path"),
				SocialHost:      cctx.String("social-api-host"),
				SocialAPIKey:    cctx.String("social-api-key"),
				SocialRateLimit: cctx.Int("social-rate-limit"),
				RPCURLs:         cctx.StringSlice("rpc-url"),
				WebhookSecret:   cctx.String("webhook-secret"),
				CheckTimeout:    cctx.Duration("check-timeout"),
				APIKey:          cctx.String("api-key"),
				JWTSecret:       cctx.String("jwt-secret"),
				SweepInterval:   cctx.Duration("sweep-interval"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var g errgroup.Group
		g.Go(func() error {
			srv.RunSweeper(ctx)
			return nil
		})
		g.Go(func() error {
			// returns once the process receives an exit signal
			defer cancel()
			return srv.RunAPI()
		})
		return g.Wait()
	},
}
