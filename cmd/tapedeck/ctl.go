package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/player"
	"github.com/progrium/tapedeck/remote"
	"github.com/progrium/tapedeck/server"
)

func dial() *remote.Client {
	c, err := remote.Dial(deckURL())
	if err != nil {
		log.Fatal("dial: ", err)
	}
	return c
}

func ctlCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "ctl <command> [args...]",
		Short: "send a command (" + strings.Join(player.CommandNames(), " ") + ")",
		Args:  cli.MinArgs(1),
		Run: func(ctx *cli.Context, args []string) {
			c := dial()
			defer c.Close()
			status, err := c.Command(context.Background(), args...)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(formatStatus(status))
		},
	}
	return cmd
}

func statusCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "status",
		Short: "show the deck's playback status",
		Run: func(ctx *cli.Context, args []string) {
			c := dial()
			defer c.Close()
			status, err := c.Status(context.Background())
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(formatStatus(status))
			if status.Run != "" {
				fmt.Println("run:", status.Run)
			}
		},
	}
	return cmd
}

func watchCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "watch",
		Short: "follow the deck's playback events",
		Run: func(ctx *cli.Context, args []string) {
			sctx, stop := signalContext()
			defer stop()

			c := dial()
			defer c.Close()
			var min int64
			err := c.Watch(sctx, func(ev server.Event) error {
				switch ev.Kind {
				case server.EventState:
					if ev.Min != 0 {
						min = ev.Min
					}
					fmt.Printf("%s %gx\n", ev.State.Symbol(), ev.Speed)
				case server.EventTick:
					dir := ">"
					if ev.Reverse {
						dir = "<"
					}
					fmt.Printf("%s %s\n", dir, player.FormatOffset(ev.Position-min))
				case server.EventBounds:
					min = ev.Min
					fmt.Printf("bounds %s\n", player.FormatOffset(ev.Max-ev.Min))
				case server.EventStop:
					fmt.Println("end of run")
				}
				return nil
			})
			if err != nil && sctx.Err() == nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}

func formatStatus(s player.Status) string {
	if !s.Bounded {
		return fmt.Sprintf("%s %gx (no data)", s.State.Symbol(), s.Speed)
	}
	dir := "forward"
	if s.Reverse {
		dir = "reverse"
	}
	return fmt.Sprintf("%s %gx %s %s / %s",
		s.State.Symbol(), s.Speed, dir,
		player.FormatOffset(s.Position-s.Min), player.FormatOffset(s.Max-s.Min))
}
