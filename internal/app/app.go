package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/APIGateway/internal/access"
	"github.com/router-for-me/APIGateway/internal/bot"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/config"
	"github.com/router-for-me/APIGateway/internal/db"
	"github.com/router-for-me/APIGateway/internal/email"
	"github.com/router-for-me/APIGateway/internal/http/api"
	"github.com/router-for-me/APIGateway/internal/http/middleware"
	"github.com/router-for-me/APIGateway/internal/metrics"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
	"github.com/router-for-me/APIGateway/internal/requestlog"
	"github.com/router-for-me/APIGateway/internal/webhook"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Gateway is a fully wired HTTP engine plus the resources it owns.
type Gateway struct {
	Engine        *gin.Engine
	Limiter       *ratelimit.Limiter
	Authenticator *access.Authenticator
	Metrics       *metrics.Metrics

	redisStats *ratelimit.RedisStats
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	clock      clock.Clock
	mailer     email.Sender
	httpClient *http.Client
}

// WithClock overrides the clock shared by limiter, logger and handlers.
func WithClock(c clock.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// WithMailer replaces the SMTP sender.
func WithMailer(s email.Sender) Option {
	return func(o *buildOptions) { o.mailer = s }
}

// WithHTTPClient sets the client used for webhook and bot calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *buildOptions) { o.httpClient = c }
}

// ConfigureLogging applies the configured log level.
func ConfigureLogging(cfg config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, errParse := log.ParseLevel(cfg.LogLevel)
	if errParse != nil {
		log.WithError(errParse).Warnf("unknown log level %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	if cfg.Debug && level < log.DebugLevel {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// Migrate opens the database and runs migrations.
func Migrate(cfg config.Config) (*gorm.DB, error) {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	return conn, nil
}

// Build wires the gateway over an already migrated connection.
func Build(ctx context.Context, cfg config.Config, conn *gorm.DB, opts ...Option) (*Gateway, error) {
	if conn == nil {
		return nil, fmt.Errorf("app: nil database connection")
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	clk := clock.OrSystem(o.clock)

	m := metrics.New()
	sinks := ratelimit.MultiSink{m}

	var redisStats *ratelimit.RedisStats
	if addr := strings.TrimSpace(cfg.RateLimit.RedisAddr); addr != "" {
		client, errDial := ratelimit.DialRedis(ctx, &redis.Options{
			Addr:     addr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if errDial != nil {
			// Stats are diagnostics only; the gateway runs without them.
			log.WithError(errDial).Warn("rate limit: redis stats disabled")
		} else {
			redisStats = ratelimit.NewRedisStats(client, cfg.RateLimit.RedisPrefix)
			sinks = append(sinks, redisStats)
		}
	}

	limiter := ratelimit.NewLimiter(ratelimit.NewStore(),
		ratelimit.WithClock(clk),
		ratelimit.WithPolicies(policiesFromConfig(cfg.RateLimit)),
		ratelimit.WithRetention(time.Duration(cfg.RateLimit.RetentionSeconds)*time.Second),
		ratelimit.WithStats(sinks),
	)
	authenticator := access.NewAuthenticator(conn, clk)

	mailer := o.mailer
	if mailer == nil {
		mailer = email.NewSMTPSender(cfg.Mail)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if errProxies := engine.SetTrustedProxies(cfg.TrustedProxies); errProxies != nil {
		return nil, fmt.Errorf("app: trusted proxies: %w", errProxies)
	}
	engine.Use(middleware.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Timestamp"},
		ExposeHeaders:   []string{middleware.HeaderLimit, middleware.HeaderRemaining, middleware.HeaderReset, middleware.HeaderRetryAfter},
		MaxAge:          24 * time.Hour,
	}))

	api.RegisterRoutes(engine, api.Deps{
		DB: conn,
		Chain: middleware.Chain{
			Recorder: requestlog.NewGormRecorder(conn),
			Observer: m,
			Resolver: authenticator,
			Limiter:  limiter,
			Clock:    clk,
		},
		Limiter:    limiter,
		Mailer:     mailer,
		Dispatcher: webhook.NewDispatcher(o.httpClient, cfg.WebhookTimeout),
		Bot:        bot.NewClient(cfg.Bot, o.httpClient),
		Metrics:    m.Handler(),
		Clock:      clk,
	})

	return &Gateway{
		Engine:        engine,
		Limiter:       limiter,
		Authenticator: authenticator,
		Metrics:       m,
		redisStats:    redisStats,
	}, nil
}

// Close releases resources owned by the gateway.
func (g *Gateway) Close() error {
	if g == nil {
		return nil
	}
	g.Authenticator.Wait()
	return g.redisStats.Close()
}

func policiesFromConfig(cfg config.RateLimitConfig) ratelimit.Policies {
	return ratelimit.Policies{
		Authenticated: ratelimit.Policy{
			Limit:  cfg.Authenticated.MaxRequests,
			Window: time.Duration(cfg.Authenticated.WindowSeconds) * time.Second,
		},
		Anonymous: ratelimit.Policy{
			Limit:  cfg.Anonymous.MaxRequests,
			Window: time.Duration(cfg.Anonymous.WindowSeconds) * time.Second,
		},
	}
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// RunServer serves the gateway until ctx is canceled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg config.Config) error {
	conn, err := Migrate(cfg)
	if err != nil {
		return err
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return fmt.Errorf("app: sql db: %w", errDB)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()

	gw, err := Build(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := gw.Close(); errClose != nil {
			log.WithError(errClose).Warn("gateway close error")
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           gw.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	policies := gw.Limiter.Policies()
	log.WithFields(log.Fields{
		"addr":          srv.Addr,
		"authenticated": fmt.Sprintf("%d/%s", policies.Authenticated.Limit, policies.Authenticated.Window),
		"anonymous":     fmt.Sprintf("%d/%s", policies.Anonymous.Limit, policies.Anonymous.Window),
		"redis_stats":   gw.redisStats != nil,
	}).Info("starting api gateway")

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}
