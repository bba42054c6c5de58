package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/broadcast"
	"github.com/progrium/tapedeck/config"
	"github.com/progrium/tapedeck/player"
	"github.com/progrium/tapedeck/server"
	"github.com/progrium/tapedeck/shmem"
	"github.com/progrium/tapedeck/tape"
	"github.com/progrium/tapedeck/telemetry"
)

func serveCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "serve [config.yaml]",
		Short: "replay the configured sources and serve controllers",
		Run: func(ctx *cli.Context, args []string) {
			cfg, err := config.Load(configPath(args))
			if err != nil {
				log.Fatal("config: ", err)
			}
			if err := serve(cfg); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}

func serve(cfg config.Config) error {
	setLogLevel(cfg.LogLevel)

	ctx, stop := signalContext()
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "tapedeck", cfg.Otel.Endpoint, cfg.Otel.Enabled)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	engine := player.NewEngine(
		player.WithTriggerInterval(cfg.TriggerInterval),
		player.WithMetrics(metrics),
	)

	if !cfg.Channel.Disabled {
		ch, err := shmem.Create(cfg.Channel.Dir, cfg.Channel.Name)
		if err != nil {
			return err
		}
		defer ch.Close()
		engine.AddSink("shmem", ch)
	}

	if cfg.LiveKit.URL != "" {
		room, err := broadcast.Connect(liveKitOptions(cfg), func(line string) error {
			return player.Exec(engine, line)
		})
		if err != nil {
			return err
		}
		defer room.Close()
		engine.AddSink("livekit", room)
	}

	closeSources, err := addSources(engine, cfg.Sources)
	defer closeSources()
	if err != nil {
		return err
	}

	l, err := listen(ctx, cfg.Listen, cfg.NgrokToken)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Println("serving:", serviceURL(l, cfg.ServiceURL))

	srv := &http.Server{Handler: server.New(engine, server.WithGatherer(reg))}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// addSources opens every configured source and attaches it to e. The
// returned func closes whatever was opened, even on error.
func addSources(e *player.Engine, sources []config.Source) (func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	for _, src := range sources {
		var s tape.Source
		switch src.Kind {
		case config.KindSQLite:
			sq, err := tape.OpenSQLite(src.Path, src.Stream)
			if err != nil {
				return closeAll, err
			}
			closers = append(closers, sq.Close)
			s = sq
		default:
			f, err := tape.OpenFile(src.Path)
			if err != nil {
				return closeAll, err
			}
			s = f
		}
		if err := e.AddSource(s); err != nil {
			return closeAll, fmt.Errorf("source %s: %w", src.Path, err)
		}
		log.Println("source:", s.Name())
	}
	return closeAll, nil
}

func liveKitOptions(cfg config.Config) broadcast.Options {
	return broadcast.Options{
		URL:      cfg.LiveKit.URL,
		Key:      cfg.LiveKit.Key,
		Secret:   cfg.LiveKit.Secret,
		Room:     cfg.LiveKit.Room,
		Identity: cfg.LiveKit.Identity,
		Topic:    cfg.LiveKit.Topic,
	}
}
