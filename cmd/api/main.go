package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"Clubs_Hub/internal/config"
	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clubs-hub",
		Short:         "KMIT Clubs Hub backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd(), createAdminCmd())
	return root
}

// setup 读取配置、初始化日志并连接存储
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.NewLogger(cfg.Log)
	return newApp(cfg)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the outbox relayer and lifecycle scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			metrics.Init()

			engine, err := a.engine()
			if err != nil {
				return err
			}
			producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: a.cfg.Kafka.Brokers})
			if err != nil {
				return err
			}
			defer producer.Close()

			relayer := service.NewOutboxRelayer(a.outbox, producer, service.RelayConfig{
				EmailTopic: a.cfg.Kafka.EmailTopic,
				PushTopic:  a.cfg.Kafka.PushTopic,
				Interval:   a.cfg.Workflow.OutboxInterval,
				MaxRetry:   a.cfg.Workflow.OutboxMaxRetry,
			})
			scheduler := service.NewLifecycleScheduler(a.events, a.recs, a.lock, a.cfg.Workflow.SchedulerInterval)
			srv := &http.Server{Addr: a.cfg.Server.Addr, Handler: engine}

			ctx, stop := signalContext(cmd)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("addr", srv.Addr).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				log.Info().Msg("shutting down http server")
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error { return relayer.Run(ctx) })
			g.Go(func() error { return scheduler.Run(ctx) })
			return g.Wait()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume notification emails from Kafka and deliver them over SMTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			consumer := pkg.NewKafkaConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.EmailTopic, a.cfg.Kafka.GroupID)
			defer consumer.Close()
			handler := service.NewEmailConsumer(a.mailer, a.notifs, a.outbox, a.cfg.PublicBaseURL, a.cfg.Workflow.OutboxMaxRetry)

			ctx, stop := signalContext(cmd)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return consumer.Run(ctx, handler.Handle) })
			return g.Wait()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := mysql.AutoMigrate(a.db); err != nil {
				return err
			}
			log.Info().Msg("migration finished")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Bootstrap an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			u, err := a.users.CreateAdmin(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			log.Info().Uint64("user_id", u.ID).Str("username", u.Username).Msg("admin created")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
