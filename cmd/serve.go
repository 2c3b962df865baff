package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/manimchat/manimchat/internal/render"
	"github.com/manimchat/manimchat/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation backend",
		Long: "serve runs the HTTP backend the chat talks to: it asks the configured\n" +
			"LLM for an answer, renders Manim scripts to video and serves the videos.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	return cmd
}

func runServe(addr string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	llm, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	model := cfg.ResolvedProvider().Model
	if model == "" {
		model = llm.DefaultModel()
	}

	renderer, err := render.New(render.Options{
		ManimBin: cfg.Server.ManimBin,
		SceneDir: cfg.Server.SceneDir,
		MediaDir: cfg.Server.MediaDir,
		Quality:  cfg.Server.Quality,
		Workers:  cfg.Server.RenderWorkers,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	srv := server.New(llm, renderer, server.Options{
		SystemPrompt:   cfg.SystemPrompt,
		Model:          model,
		MaxTokens:      cfg.Server.MaxTokens,
		Temperature:    cfg.Server.Temperature,
		MediaDir:       renderer.MediaDir(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"provider": llm.Name(),
		"model":    model,
		"quality":  cfg.Server.Quality,
	}).Info("starting generation backend")
	return srv.Run(ctx, cfg.Server.Addr)
}
