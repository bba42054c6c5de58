package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/remote"
	"github.com/progrium/tapedeck/server"
)

func relayCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "relay <deck-url> [addr]",
		Short: "expose a deck on another address, or publicly with NGROK_TOKEN",
		Args:  cli.MinArgs(1),
		Run: func(ctx *cli.Context, args []string) {
			upstream, err := remote.NormalizeURL(args[0])
			if err != nil {
				log.Fatal("upstream: ", err)
			}
			addr := ":8082"
			if len(args) > 1 {
				addr = args[1]
			}

			l, err := listen(context.Background(), addr, os.Getenv("NGROK_TOKEN"))
			if err != nil {
				log.Fatal("listen: ", err)
			}
			log.Println("relaying", serviceURL(l, ""), "to", upstream)
			log.Fatal(http.Serve(l, server.Relay(upstream)))
		},
	}
	return cmd
}
