package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/APIGateway/internal/app"
	"github.com/router-for-me/APIGateway/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and either seeds a user or serves the gateway.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port (overrides config)")
	createUser := fs.String("create-user", "", "create a user with this username and print its API key, then exit")
	emailAddr := fs.String("email", "", "email address for -create-user")
	password := fs.String("password", "", "optional password for -create-user")
	rateLimit := fs.Int("rate-limit", 0, "per-user requests per window for -create-user (0 uses the default policy)")
	keyName := fs.String("key-name", "default", "name of the initial API key for -create-user")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	if !app.ConfigExists(appCfg.ConfigPath) {
		log.Infof("config file %s not found, using defaults and environment", appCfg.ConfigPath)
	}

	cfg, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	app.ConfigureLogging(cfg)

	if strings.TrimSpace(*createUser) != "" {
		return runCreateUser(cfg, app.CreateUserParams{
			Username:  *createUser,
			Email:     *emailAddr,
			Password:  *password,
			RateLimit: *rateLimit,
			KeyName:   *keyName,
		})
	}

	return app.RunServer(ctx, cfg)
}

func runCreateUser(cfg config.Config, params app.CreateUserParams) error {
	conn, err := app.Migrate(cfg)
	if err != nil {
		return err
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	user, key, err := app.CreateUserWithConn(conn, params)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("user created")
	fmt.Println(key.Key)
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
