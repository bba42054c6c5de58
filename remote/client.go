package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"
	"tractor.dev/toolkit-go/duplex/codec"
	"tractor.dev/toolkit-go/duplex/mux"
	"tractor.dev/toolkit-go/duplex/rpc"

	"github.com/progrium/tapedeck/player"
	"github.com/progrium/tapedeck/server"
)

// Client controls a deck over its RPC endpoint.
type Client struct {
	ServerURL url.URL

	rpc *rpc.Client
}

// NormalizeURL turns an http(s) or ws(s) server address into the websocket
// base URL of a deck.
func NormalizeURL(serverURL string) (*url.URL, error) {
	if !strings.Contains(serverURL, "://") {
		serverURL = "ws://" + serverURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "http" {
		u.Scheme = "ws"
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	if !strings.HasPrefix(u.Scheme, "ws") {
		return nil, fmt.Errorf("invalid scheme: %s", u.Scheme)
	}
	u.Path = ""
	return u, nil
}

func dialRPC(baseURL url.URL) (*rpc.Client, error) {
	rpcURL := baseURL
	rpcURL.Path = server.RPCPath

	originURL := baseURL
	originURL.Path = ""
	if originURL.Scheme == "wss" {
		originURL.Scheme = "https"
	} else {
		originURL.Scheme = "http"
	}

	ws, err := websocket.Dial(rpcURL.String(), "", originURL.String())
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return rpc.NewClient(mux.New(ws), codec.CBORCodec{}), nil
}

func Dial(serverURL string) (*Client, error) {
	u, err := NormalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	client, err := dialRPC(*u)
	if err != nil {
		return nil, err
	}
	return &Client{ServerURL: *u, rpc: client}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) Status(ctx context.Context) (player.Status, error) {
	var status player.Status
	_, err := c.rpc.Call(ctx, "deck.status", nil, &status)
	return status, err
}

// Command runs a slash-command such as "/seek 01:30" on the deck and returns
// the status that resulted.
func (c *Client) Command(ctx context.Context, args ...string) (player.Status, error) {
	var status player.Status
	_, err := c.rpc.Call(ctx, "deck.cmd", args, &status)
	return status, err
}

// Watch calls fn with a state event for the deck's current status and then
// with every event until the deck goes away, ctx is done or fn fails.
func (c *Client) Watch(ctx context.Context, fn func(server.Event) error) error {
	var status player.Status
	resp, err := c.rpc.Call(ctx, "deck.watch", nil, &status)
	if err != nil {
		return err
	}
	if !resp.Continue() {
		return fmt.Errorf("watch not supported")
	}
	if err := fn(server.StatusEvent(status)); err != nil {
		return err
	}

	events := make(chan server.Event)
	errs := make(chan error, 1)
	go func() {
		for {
			var ev server.Event
			if err := resp.Receive(&ev); err != nil {
				errs <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := fn(ev); err != nil {
				return err
			}
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
