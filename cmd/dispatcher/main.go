// The dispatcher is invoked by cron on a fixed interval. One invocation
// processes one batch of due notifications and prints a status report.
// Overlapping invocations are safe: the claim on each header is atomic.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jmoiron/sqlx"
	wbfredis "github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/newsdesk/notifyd/internal/config"
	"github.com/newsdesk/notifyd/internal/method"
	"github.com/newsdesk/notifyd/internal/method/email"
	rabbitpublisher "github.com/newsdesk/notifyd/internal/rabbitProducer"
	"github.com/newsdesk/notifyd/internal/repository"
	"github.com/newsdesk/notifyd/internal/service"
	"github.com/newsdesk/notifyd/pkg/postgres"
)

func main() {
	ctx, ctxStop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer ctxStop()

	cfg, err := config.NewConfig("./config/.env", "")
	if err != nil {
		log.Fatal(err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.Env); err != nil {
		log.Fatal(fmt.Errorf("error setting log level to '%s': %w", cfg.Env, err))
	}

	zlog.Logger.Info().
		Str("env", cfg.Env).
		Msg("starting notifyd dispatcher run")

	postgresRetryStrategy := config.MakeStrategy(cfg.PostgresRetry)
	rabbitmqRetryStrategy := config.MakeStrategy(cfg.RabbitMQRetry)
	redisRetryStrategy := config.MakeStrategy(cfg.RedisRetry)

	var db *sqlx.DB
	err = retry.DoContext(ctx, postgresRetryStrategy, func() error {
		var connErr error
		db, connErr = postgres.New(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConnections,
			cfg.Database.MaxIdleConnections,
			cfg.Database.ConnMaxLifetime(),
		)
		return connErr
	})
	if err != nil {
		zlog.Logger.Fatal().
			Err(err).
			Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient := wbfredis.New(
		fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)

	publisher, err := rabbitpublisher.NewRabbitPublisher(ctx, cfg.RabbitMQ, rabbitmqRetryStrategy)
	if err != nil {
		zlog.Logger.Fatal().
			Err(err).
			Msg("failed to create rabbitmq publisher")
	}
	defer publisher.Close()

	headerRepository := repository.NewHeaderRepository(db, postgresRetryStrategy)
	articleRepository := repository.NewArticleRepository(db, postgresRetryStrategy)
	statusCache := repository.NewRedisRepository(redisClient, redisRetryStrategy, cfg.RedisExpiration())
	transport := repository.NewRabbitRepository(publisher)

	emailMethod := email.NewMethod(email.NewRepository(db, postgresRetryStrategy), transport)
	registry := method.NewRegistry(emailMethod)

	queueService := service.NewQueueService(headerRepository, articleRepository, statusCache, registry, cfg.HoldDelay())
	dispatchService := service.NewDispatchService(queueService, articleRepository, service.NewAuthorNotifier(transport))

	report, err := dispatchService.Run(ctx)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("dispatch run failed")
	}

	// individual delivery failures are inside the report, not the exit code
	fmt.Println(report.Render())
}
