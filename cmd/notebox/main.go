package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/notebox/internal/config"
	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/logging"
	"github.com/saltyorg/notebox/internal/maintenance"
	"github.com/saltyorg/notebox/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	logPath     string
	dev         bool
	verbosity   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notebox",
		Short: "Notebox - private notes and todos",
		Long:  `Notebox is a small multi-user server where every user keeps their own numbered notes and todos.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  serve,
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	serveCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (or set BIND env var)")
	serveCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	serveCmd.Flags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set DB_PATH env var)")
	serveCmd.Flags().StringVar(&logPath, "log-file", "", "Log file path (or set LOG_PATH env var, default next to the database)")
	serveCmd.Flags().BoolVar(&dev, "dev", false, "Allow session cookies over plain HTTP (or set NOTEBOX_DEV)")
	serveCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notebox %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveFlags fills unset flags from the environment
func resolveFlags(env config.Env) {
	if port == 0 {
		port = env.Port
	}
	if bind == "" {
		bind = env.Bind
	}
	if dbPath == "" {
		dbPath = env.DBPath
	}
	if logPath == "" {
		logPath = env.LogPath
	}
	if !dev {
		dev = env.Dev
	}
}

func serve(cmd *cobra.Command, args []string) error {
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	resolveFlags(env)

	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	logging.Setup(verbosity)

	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Rotation settings live in the database, so file logging starts after it opens
	if logPath == "" {
		logPath = logging.FilePathForDB(dbPath)
	}
	logging.Apply(verbosity, config.NewLoader(db), logPath)

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Bool("dev", dev).
		Msg("Starting Notebox")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := web.NewServer(ctx, db, web.Options{
		Port:       port,
		Bind:       bind,
		AllowedNet: allowedNet,
		Dev:        dev,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}

	maint := maintenance.NewManager(db)
	if err := maint.Start(); err != nil {
		log.Warn().Err(err).Msg("Maintenance scheduler not started")
	}
	defer maint.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Notebox stopped")
	return nil
}
