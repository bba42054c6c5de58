package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/config"
	"github.com/progrium/tapedeck/shmem"
)

func peekCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "peek [channel]",
		Short: "print records as they arrive on a shared-memory channel",
		Run: func(ctx *cli.Context, args []string) {
			cfg, err := config.Load(configPath(nil))
			if err != nil {
				log.Fatal("config: ", err)
			}
			name := cfg.Channel.Name
			if len(args) > 0 {
				name = args[0]
			}

			ch, err := shmem.Open(cfg.Channel.Dir, name)
			if err != nil {
				log.Fatal(err)
			}
			defer ch.Close()

			sctx, stop := signalContext()
			defer stop()
			for {
				err := ch.Wait(sctx, time.Second)
				if errors.Is(err, shmem.ErrTimeout) {
					continue
				}
				if err != nil {
					if sctx.Err() == nil {
						log.Println("peek:", err)
					}
					return
				}
				rec, err := ch.Read()
				if err != nil {
					log.Println("peek:", err)
					return
				}
				fmt.Printf("%d range=%d samples=%d\n", rec.Timestamp, rec.TimeRange, rec.SampleCount())
			}
		},
	}
	return cmd
}
