// Package main is the entry point for the Frndly TV bridge.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frndly/frndlyd/internal/api"
	"github.com/frndly/frndlyd/internal/config"
	"github.com/frndly/frndlyd/internal/server"
	"github.com/frndly/frndlyd/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg = config.DefaultConfig()
	log = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "frndlyd",
		Short: "Frndly TV bridge for IPTV clients",
		Long:  `Serves Frndly TV channels as an M3U8 playlist and XMLTV guide for IPTV/PVR clients.`,
		RunE:  run,
	}

	// Required flags
	rootCmd.Flags().StringVar(&cfg.Username, "username", "", "Frndly TV username (required)")
	rootCmd.Flags().StringVar(&cfg.Password, "password", "", "Frndly TV password (required)")

	if err := rootCmd.MarkFlagRequired("username"); err != nil {
		log.WithError(err).Fatal("Failed to mark username flag as required")
	}

	if err := rootCmd.MarkFlagRequired("password"); err != nil {
		log.WithError(err).Fatal("Failed to mark password flag as required")
	}

	// Server flags
	rootCmd.Flags().StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "Bind address")
	rootCmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Port number")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Optional rotating log file")

	// Storage and session flags
	rootCmd.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the persisted session")
	rootCmd.Flags().DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Session time-to-live before forced re-login")
	rootCmd.Flags().DurationVar(&cfg.ChannelCacheTTL, "channel-ttl", cfg.ChannelCacheTTL, "Channel list cache time-to-live")
	rootCmd.Flags().DurationVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "Background keep-alive interval")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			log.WithError(err).Warn("Failed to create log directory")
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			}))
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.WithError(err).Warn("Failed to create data directory, session persistence disabled")
			cfg.DataDir = ""
		}
	}

	log.WithFields(logrus.Fields{
		"username": cfg.Username,
		"addr":     cfg.ListenAddr(),
	}).Info("Starting Frndly TV bridge")

	creds := session.Credentials{Username: cfg.Username, Password: cfg.Password}
	sess := session.NewManager(log, creds, cfg.DataDir, cfg.SessionTTL, session.DefaultBaseURL)
	client := api.NewClient(log, sess, api.DefaultEndpoints(), cfg.ChannelCacheTTL)
	srv := server.NewServer(log, cfg, sess, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Received shutdown signal")

	return srv.Stop()
}
