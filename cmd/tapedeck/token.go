package main

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/broadcast"
	"github.com/progrium/tapedeck/config"
)

func tokenCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "token <identity>",
		Short: "mint a LiveKit viewer token for the broadcast room",
		Args:  cli.MinArgs(1),
		Run: func(ctx *cli.Context, args []string) {
			cfg, err := config.Load(configPath(nil))
			if err != nil {
				log.Fatal("config: ", err)
			}
			if cfg.LiveKit.URL == "" {
				log.Fatal("livekit is not configured")
			}
			token, err := broadcast.ViewerToken(liveKitOptions(cfg), args[0], 3*time.Hour)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(token)

			lkURL := strings.ReplaceAll(cfg.LiveKit.URL, "https:", "wss:")
			meetURL := "https://meet.livekit.io/custom?liveKitUrl=%s&token=%s"
			fmt.Printf(meetURL+"\n", url.QueryEscape(lkURL), token)
		},
	}
	return cmd
}
