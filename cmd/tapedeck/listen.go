package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// listen opens a public ngrok endpoint when a token is configured and a
// plain TCP listener on addr otherwise.
func listen(ctx context.Context, addr, ngrokToken string) (net.Listener, error) {
	if ngrokToken != "" {
		return ngrok.Listen(ctx,
			ngrokconfig.HTTPEndpoint(),
			ngrok.WithAuthtoken(ngrokToken),
		)
	}
	return net.Listen("tcp4", addr)
}

func serviceURL(l net.Listener, configured string) string {
	if tun, ok := l.(ngrok.Tunnel); ok {
		return tun.URL()
	}
	if configured != "" {
		return configured
	}
	return "http://" + l.Addr().String()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		log.Printf("log level %q: %v", level, err)
		return
	}
	slog.SetLogLoggerLevel(l)
}

func deckURL() string {
	if u := os.Getenv("TAPEDECK_URL"); u != "" {
		return u
	}
	return "localhost:8081"
}

func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return os.Getenv("TAPEDECK_CONFIG")
}
