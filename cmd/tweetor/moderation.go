package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tweetor-social/tweetor/cachestore"
	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/moderation/keyword"
	"github.com/tweetor-social/tweetor/moderation/sightengine"
	"github.com/tweetor-social/tweetor/pkg/robusthttp"
	"github.com/tweetor-social/tweetor/setstore"

	cli "github.com/urfave/cli/v2"
)

func buildClassifier(cctx *cli.Context, logger *slog.Logger) (moderation.Classifier, error) {
	switch cctx.String("classifier") {
	case "sightengine":
		user := cctx.String("sightengine-user")
		secret := cctx.String("sightengine-secret")
		if user == "" || secret == "" {
			return nil, fmt.Errorf("sightengine classifier requires --sightengine-user and --sightengine-secret")
		}
		// retries are owned by the moderation pipeline, not the HTTP client
		httpClient := robusthttp.NewClient(
			robusthttp.WithMaxRetries(0),
			robusthttp.WithTimeout(cctx.Duration("classifier-timeout")),
			robusthttp.WithLogger(logger),
		)
		sc := sightengine.NewClient(user, secret, httpClient)
		sc.Host = cctx.String("sightengine-host")
		sc.Logger = logger.With("component", "sightengine")
		return sc, nil
	case "keyword":
		sets := setstore.NewMemSetStore()
		if p := cctx.String("keyword-sets-file"); p != "" {
			if err := sets.LoadFromFileJSON(p); err != nil {
				return nil, fmt.Errorf("loading keyword sets: %w", err)
			}
			logger.Info("loaded keyword sets", "path", p, "sets", sets.Names())
		} else {
			logger.Warn("keyword classifier has no sets configured; every text will be allowed")
		}
		return keyword.NewClassifier(sets), nil
	default:
		return nil, fmt.Errorf("unknown classifier: %q", cctx.String("classifier"))
	}
}

func buildModerator(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (*moderation.Pipeline, error) {
	classifier, err := buildClassifier(cctx, logger)
	if err != nil {
		return nil, err
	}
	failPolicy, err := moderation.ParseFailPolicy(cctx.String("fail-policy"))
	if err != nil {
		return nil, err
	}

	var cache cachestore.CacheStore
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		rcache, err := cachestore.NewRedisCacheStore(ctx, cachestore.RedisConfig{
			URL:       redisURL,
			Namespace: "tweetor",
			TTL:       cctx.Duration("verdict-cache-ttl"),
			LocalSize: 10_000,
		})
		if err != nil {
			return nil, err
		}
		cache = rcache
		logger.Info("using redis verdict cache")
	} else {
		cache = cachestore.NewMemCacheStore(10_000, cctx.Duration("verdict-cache-ttl"))
	}

	config := moderation.DefaultConfig()
	config.Categories = cctx.StringSlice("moderation-categories")
	config.FailPolicy = failPolicy
	config.Retry.Attempts = cctx.Int("classifier-retries")
	config.Timeout = cctx.Duration("classifier-timeout")
	config.Cache = cache
	config.Logger = logger
	return moderation.NewPipeline(classifier, config), nil
}
