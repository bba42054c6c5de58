package main

import (
	"context"
	"log"
	"os"

	"tractor.dev/toolkit-go/engine/cli"
)

var Version = "dev"

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	root := &cli.Command{
		Version: Version,
		Usage:   "tapedeck",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(ctlCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(peekCmd())
	root.AddCommand(genCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(relayCmd())

	if err := cli.Execute(context.Background(), root, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
