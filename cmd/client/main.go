package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stocksim/config"
	"stocksim/internal/client"
	"stocksim/logger"
	"stocksim/pkg/backend"
	"stocksim/tui"

	"go.uber.org/zap"
)

func main() {
	useTUI := flag.Bool("tui", false, "run the terminal UI instead of headless mode")
	flag.Parse()

	// viper config
	cfg := config.Load()

	// zap logger; the TUI owns the terminal so only the file core stays on
	build := logger.New
	if *useTUI {
		build = logger.Quiet
	}
	log, err := build(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg, log)
	if err != nil {
		log.Fatal("client setup failed", zap.Error(err))
	}

	// one-shot trading commands
	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(ctx, c, args, os.Stdin, os.Stdout); err != nil {
			var u usageError
			if errors.As(err, &u) {
				fmt.Fprintln(os.Stderr, u.Error())
				os.Exit(2)
			}
			log.Warn("command failed", zap.String("command", args[0]), zap.Error(err))
			fmt.Fprintln(os.Stderr, backend.Describe(err))
			os.Exit(1)
		}
		return
	}

	if err := c.Start(ctx); err != nil {
		log.Fatal("client failed", zap.Error(err))
	}
	defer c.Stop()

	if *useTUI {
		m := tui.NewModel(c.Dispatcher, c.Conn, c.Stores)
		if err := tui.Run(ctx, m); err != nil {
			log.Error("terminal UI failed", zap.Error(err))
		}
		return
	}

	<-ctx.Done()
	log.Info("shutting down")
}
