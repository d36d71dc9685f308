package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pesttrack/pesttrack/internal/app"
	"github.com/pesttrack/pesttrack/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	if errRun := run(os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the server or the admin
// bootstrap command.
func run(args []string) error {
	fs := flag.NewFlagSet("pesttrack", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8420, "server port")
	createAdmin := fs.Bool("create-admin", false, "create an admin account and exit")
	adminUsername := fs.String("admin-username", "", "admin username (with -create-admin)")
	adminEmail := fs.String("admin-email", "", "admin email (with -create-admin)")
	adminPassword := fs.String("admin-password", "", "admin password (with -create-admin)")
	adminName := fs.String("admin-name", "", "admin full name (with -create-admin)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *createAdmin {
		return app.CreateAdmin(ctx, appCfg, app.CreateAdminParams{
			Username: *adminUsername,
			Email:    *adminEmail,
			Password: *adminPassword,
			FullName: *adminName,
		})
	}

	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
