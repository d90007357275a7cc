package app

import (
	"context"

	"github.com/far4599/video-downloader-api/internal/app/server"
	"github.com/far4599/video-downloader-api/internal/config"
	"github.com/far4599/video-downloader-api/internal/extractor"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/far4599/video-downloader-api/internal/ratelimit"
	"github.com/far4599/video-downloader-api/internal/repository"
	"github.com/far4599/video-downloader-api/internal/service"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	conf *config.Config
}

func NewApp(conf *config.Config) *App {
	return &App{
		conf: conf,
	}
}

func (app *App) Run(ctx context.Context) error {
	limiter, closeLimiter, err := app.newRateLimitStore(ctx)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var (
		merger extractor.Merger
		media  service.MediaFinder
	)
	if app.conf.Merge.Enabled {
		mediaRepo, err := repository.NewMediaRepository(app.conf.Merge.MediaDir, app.conf.Merge.TTL)
		if err != nil {
			return err
		}
		defer mediaRepo.Purge()

		merger = extractor.NewFFmpegMerger(app.conf.Merge.FFmpegBinary, app.conf.HTTP.PublicBaseURL, mediaRepo)
		media = mediaRepo
	}

	engine := extractor.NewYtDlpEngine(
		app.conf.Extractor.Binary,
		app.conf.Extractor.CacheDir,
		app.conf.Extractor.Workers,
		app.conf.Extractor.SocketTimeout,
	)

	client := extractor.NewClient(engine, merger, extractor.Options{
		Timeout:       app.conf.Extractor.Timeout,
		MaxAttempts:   app.conf.Extractor.MaxAttempts,
		RetryDelay:    app.conf.Extractor.RetryDelay,
		MaxRetryDelay: app.conf.Extractor.MaxRetryDelay,
	})

	vs := service.NewVideoService(client, merger != nil)
	handler := service.NewHTTPHandler(vs, media, app.conf.HTTP.MaxBodyBytes)

	errGroup, errCtx := errgroup.WithContext(ctx)

	errGroup.Go(func() error {
		return server.NewServer(app.conf, handler, limiter).Run(errCtx)
	})

	return errGroup.Wait()
}

func (app *App) newRateLimitStore(ctx context.Context) (ratelimit.Store, func(), error) {
	if app.conf.RateLimit.RedisURL == "" {
		store, err := ratelimit.NewMemoryStore(app.conf.RateLimit.MaxClients)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create rate limit store")
		}
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(app.conf.RateLimit.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse rate limit redis url")
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "failed to connect to rate limit redis")
	}

	log.Logger.Infow("using redis rate limit store", "addr", opts.Addr)

	return ratelimit.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}
