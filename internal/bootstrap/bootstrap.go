// Package bootstrap builds the adapters and use cases shared by every binary.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/adapters/courseware"
	"github.com/khoahotran/lecture-video/adapters/directory"
	"github.com/khoahotran/lecture-video/adapters/event"
	"github.com/khoahotran/lecture-video/adapters/externalhost"
	"github.com/khoahotran/lecture-video/adapters/mail"
	"github.com/khoahotran/lecture-video/adapters/objectstore"
	"github.com/khoahotran/lecture-video/adapters/persistence"
	"github.com/khoahotran/lecture-video/adapters/remote"
	"github.com/khoahotran/lecture-video/adapters/transcoder"
	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	coursewareUC "github.com/khoahotran/lecture-video/internal/application/usecase/courseware"
	hostUC "github.com/khoahotran/lecture-video/internal/application/usecase/externalhost"
	"github.com/khoahotran/lecture-video/internal/application/usecase/maintenance"
	"github.com/khoahotran/lecture-video/internal/application/usecase/membership"
	notificationUC "github.com/khoahotran/lecture-video/internal/application/usecase/notification"
	"github.com/khoahotran/lecture-video/internal/application/usecase/permission"
	"github.com/khoahotran/lecture-video/internal/application/usecase/pipeline"
	"github.com/khoahotran/lecture-video/internal/application/usecase/worker"
	"github.com/khoahotran/lecture-video/internal/config"
	collectionDomain "github.com/khoahotran/lecture-video/internal/domain/collection"
	coursewareDomain "github.com/khoahotran/lecture-video/internal/domain/courseware"
	hostDomain "github.com/khoahotran/lecture-video/internal/domain/externalhost"
	notificationDomain "github.com/khoahotran/lecture-video/internal/domain/notification"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/logger"
	"github.com/khoahotran/lecture-video/pkg/retry"
	"github.com/khoahotran/lecture-video/pkg/tracing"
)

const remoteHeaderTimeout = time.Minute

type Repos struct {
	Users       user.Repository
	Collections collectionDomain.Repository
	Videos      video.Repository
	Files       video.FileRepository
	Thumbnails  video.ThumbnailRepository
	Subtitles   video.SubtitleRepository
	Jobs        video.TranscodeJobRepository
	Hosted      hostDomain.Repository
	Endpoints   coursewareDomain.Repository
	Templates   notificationDomain.Repository
}

type UseCases struct {
	Ingest      *pipeline.IngestUseCase
	Retranscode *pipeline.RetranscodeUseCase
	Visibility  *pipeline.VisibilityUseCase
	Subtitles   *pipeline.SubtitleUseCase
	Delete      *pipeline.DeleteUseCase
	Transcode   *pipeline.TranscodeUseCase
	Reconcile   *pipeline.ReconcileUseCase
	Publish     *coursewareUC.PublishUseCase
	Notify      *notificationUC.NotifyUseCase
	Host        *hostUC.Syncer
	Maintenance *maintenance.UseCase
	Evaluator   *permission.Evaluator
}

// App holds every long-lived dependency. Close releases them in reverse order.
type App struct {
	Config   config.Config
	Logger   logger.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Producer *event.KafkaProducerClient
	Tracer   *sdktrace.TracerProvider
	Store    service.ObjectStore
	Events   *events.Dispatcher
	Repos    Repos
	UC       UseCases
}

// New connects to Postgres, Redis and Kafka and builds the use cases.
// serviceName tags the exported traces.
func New(ctx context.Context, cfg config.Config, log logger.Logger, serviceName string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: log}

	tp, err := tracing.NewTracerProvider(cfg, log, serviceName)
	if err != nil {
		return nil, err
	}
	app.Tracer = tp

	if cfg.DB.AutoMigrate {
		if err := persistence.RunMigrations(cfg, log); err != nil {
			return nil, err
		}
	}
	if app.DB, err = persistence.NewPostgresPool(cfg, log); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("cannot connect Postgres: %w", err)
	}
	if app.Redis, err = persistence.NewRedisClient(cfg, log); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("cannot connect Redis: %w", err)
	}
	if app.Producer, err = event.NewKafkaProducerClient(cfg, log); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("cannot init Kafka: %w", err)
	}

	if err := app.build(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	a.Repos = Repos{
		Users:       persistence.NewPostgresUserRepo(a.DB, log),
		Collections: persistence.NewPostgresCollectionRepo(a.DB, log),
		Videos:      persistence.NewPostgresVideoRepo(a.DB, log),
		Files:       persistence.NewPostgresFileRepo(a.DB, log),
		Thumbnails:  persistence.NewPostgresThumbnailRepo(a.DB, log),
		Subtitles:   persistence.NewPostgresSubtitleRepo(a.DB, log),
		Jobs:        persistence.NewPostgresTranscodeJobRepo(a.DB, log),
		Hosted:      persistence.NewPostgresExternalHostRepo(a.DB, log),
		Endpoints:   persistence.NewPostgresCoursewareRepo(a.DB, log),
		Templates:   persistence.NewPostgresNotificationRepo(a.DB, log),
	}
	r := a.Repos

	awsCfg, err := objectstore.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	a.Store = objectstore.NewS3Adapter(awsCfg, cfg, log)
	signer, err := objectstore.NewCloudFrontSigner(cfg)
	if err != nil {
		return fmt.Errorf("init CDN signer: %w", err)
	}
	et := transcoder.NewElasticTranscoderAdapter(awsCfg, cfg, log)
	host, err := externalhost.NewYouTubeAdapter(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init external host: %w", err)
	}
	dir, err := directory.NewMoiraClient(cfg, log)
	if err != nil {
		return fmt.Errorf("init directory client: %w", err)
	}

	var cache service.MembershipCache
	if cfg.Directory.CacheStore == "redis" {
		cache = persistence.NewRedisMembershipCache(a.Redis, cfg.Directory.CacheTTL, log)
	} else {
		cache = persistence.NewMemoryMembershipCache(cfg.Directory.CacheTTL)
	}
	var mailer service.Mailer
	if cfg.Mail.Provider == "smtp" {
		mailer = mail.NewSMTPMailer(cfg, log)
	} else {
		mailer = mail.NewMailgunMailer(cfg, log)
	}

	locker := persistence.NewRedisLocker(a.Redis, log)
	queue := a.Producer

	a.Events = events.NewDispatcher(log)
	pipeline.NewSubscribers(queue, r.Videos).Register(a.Events)
	// the mirror feeds audit consumers only; its failures never undo a transition
	a.Events.SubscribeAll(func(ctx context.Context, e events.Event) error {
		if err := a.Producer.MirrorEvent(ctx, e); err != nil {
			log.Warn("Event mirror failed", zap.String("event", string(e.EventName())), zap.Error(err))
		}
		return nil
	})

	settings := pipeline.SettingsFromConfig(cfg)
	resolver := membership.NewResolver(dir, cache, cfg.Directory.HomeDomain, log)
	materializer := pipeline.NewMaterializer(r.Files, r.Thumbnails, a.Store, et, settings, log)

	uc := UseCases{
		Ingest: pipeline.NewIngestUseCase(r.Users, r.Collections, r.Videos, r.Files, a.Store,
			remote.NewHTTPSource(remoteHeaderTimeout, log), queue, locker, a.Events, settings, log),
		Retranscode: pipeline.NewRetranscodeUseCase(r.Videos, r.Collections, queue, locker, settings, log),
		Visibility:  pipeline.NewVisibilityUseCase(r.Videos, r.Collections, r.Subtitles, a.Events, log),
		Subtitles:   pipeline.NewSubtitleUseCase(r.Videos, r.Subtitles, a.Store, a.Events, settings, log),
		Delete: pipeline.NewDeleteUseCase(r.Videos, r.Collections, r.Files, r.Thumbnails, r.Subtitles,
			r.Hosted, a.Store, queue, settings, log),
		Transcode: pipeline.NewTranscodeUseCase(r.Videos, r.Collections, r.Files, r.Jobs, et, a.Events, settings, log),
		Reconcile: pipeline.NewReconcileUseCase(r.Videos, r.Collections, r.Jobs, et, materializer, locker,
			a.Events, settings, log),
		Publish: coursewareUC.NewPublishUseCase(r.Videos, r.Collections, r.Files, r.Endpoints,
			courseware.NewEdxClient(cfg, log), signer, queue, coursewareUC.SettingsFromConfig(cfg), log),
		Notify: notificationUC.NewNotifyUseCase(r.Videos, r.Collections, r.Users, r.Templates, dir, resolver,
			mailer, notificationUC.SettingsFromConfig(cfg), log),
		Host: hostUC.NewSyncer(r.Videos, r.Collections, r.Files, r.Subtitles, r.Hosted, host, a.Store, locker,
			hostUC.SettingsFromConfig(cfg), log),
		Evaluator: permission.NewEvaluator(resolver, log),
	}
	uc.Maintenance = maintenance.NewUseCase(r.Videos, r.Files, a.Store, queue, uc.Retranscode, uc.Publish, log)
	a.UC = uc
	return nil
}

// TaskDispatcher routes queued tasks to the use cases.
func (a *App) TaskDispatcher() *worker.Dispatcher {
	return worker.NewDispatcher(worker.Handlers{
		Streamer:   a.UC.Ingest,
		Transcoder: a.UC.Transcode,
		Host:       a.UC.Host,
		Courseware: a.UC.Publish,
		Notifier:   a.UC.Notify,
		Store:      a.Store,
	}, retry.DefaultConfig(), a.Logger)
}

func (a *App) Close(ctx context.Context) {
	if a.Producer != nil {
		a.Producer.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Redis close failed")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			a.Logger.Error("Tracer shutdown failed", err)
		}
	}
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config) logger.Logger {
	return logger.NewZapLoggerWithOptions(cfg.App.Env, logger.Options{File: cfg.App.LogFile})
}
