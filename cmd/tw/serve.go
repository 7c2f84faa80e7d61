package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskwell/taskwell/internal/api"
	"github.com/taskwell/taskwell/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskwell HTTP API server",
	Long: `Start the HTTP API server backed by an embedded SQLite database.

Configuration is read from taskwell.yaml (working directory or $HOME),
overridable with TW_* environment variables:

  server.addr   listen address          (default :3000)
  db.path       database file or libsql:// URL (default data/app.db)
  log.file      rotating log file, empty logs to stderr only
  seed          seed a fresh database with sample data (default true)

A fresh database gets the schema plus, when seed is enabled, two users
(henrik, marcus) and sample tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetDefault("server.addr", ":3000")
		v.SetDefault("db.path", "data/app.db")
		v.SetDefault("log.file", "")
		v.SetDefault("seed", true)

		v.SetConfigName("taskwell")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetEnvPrefix("TW")
		v.AutomaticEnv()
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			v.Set("server.addr", addr)
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			v.Set("db.path", dbPath)
		}

		var logOut io.Writer = os.Stderr
		if logFile := v.GetString("log.file"); logFile != "" {
			logOut = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			})
		}
		logger := log.New(logOut, "[api] ", log.LstdFlags)

		v.OnConfigChange(func(e fsnotify.Event) {
			logger.Printf("Config file changed: %s", e.Name)
		})
		v.WatchConfig()

		st, err := store.Open(v.GetString("db.path"))
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		if err := st.InitSchema(ctx); err != nil {
			return err
		}
		if v.GetBool("seed") {
			if err := st.Seed(ctx, false); err != nil {
				return err
			}
		}

		server := api.NewServer(&api.Config{
			Addr:   v.GetString("server.addr"),
			Store:  st,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			return err
		}

		fmt.Printf("taskwell listening on http://%s\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-sigCtx.Done()

		fmt.Println("\nShutting down...")
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().String("db", "", "database path or libsql:// URL (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
