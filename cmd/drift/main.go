// Drift: CLI entry point.
//
// This tool joins a room on a signaling relay, negotiates a direct WebRTC
// DataChannel with the other member of the room and turns the terminal into
// a chat over that channel. The relay is only used while the peers
// negotiate.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (--url, --room).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/drift/internal/config"
	"github.com/1ureka/drift/internal/controller"
	"github.com/1ureka/drift/internal/negotiation"
	"github.com/1ureka/drift/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Drift — v%s", version))
	pterm.Println()

	if cfg.Endpoint == "" {
		cfg.Endpoint = askURL()
	}
	if cfg.Room == "" {
		cfg.Room = askRoom()
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if util.DebugEnabled() {
		util.LogDebug("relay %s, room %q (%s), stun %v, timeout %s",
			cfg.Endpoint, cfg.Room, cfg.RoomParam, cfg.STUNServers, cfg.NegotiationTimeout)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed peer connection")
}

// parseFlags binds the command line onto a Config.
func parseFlags(args []string) (config.Config, error) {
	cfg := config.Default()

	flagSet := pflag.NewFlagSet("drift", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.Endpoint, "url", "u", "", "signaling relay URL (e.g. wss://relay.example.com/signal)")
	flagSet.StringVarP(&cfg.Room, "room", "r", "", "room to join")
	flagSet.StringVar(&cfg.RoomParam, "room-param", cfg.RoomParam, "query parameter carrying the room id")
	flagSet.StringSliceVar(&cfg.STUNServers, "stun", cfg.STUNServers, "STUN servers used for ICE gathering")
	flagSet.DurationVar(&cfg.NegotiationTimeout, "timeout", cfg.NegotiationTimeout, "give up if the channel is not open after this long")
	flagSet.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	if err := flagSet.Parse(args); err != nil {
		return cfg, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Run mode
// ---------------------------------------------------------------------------

// run opens the session and relays stdin lines to the peer until ctx is
// cancelled or stdin ends.
func run(ctx context.Context, cfg config.Config) error {
	c := controller.New(controller.Options{Config: cfg})

	c.OnState(func(st negotiation.State) {
		switch st {
		case negotiation.Connected:
			util.LogSuccess("P2P channel established — type a message and press Enter")
		case negotiation.Failed:
			util.LogError("negotiation failed")
		default:
			util.LogInfo("state: %s", st)
		}
	})
	c.OnMessage(func(b []byte) {
		pterm.Println(pterm.LightCyan("peer> ") + string(b))
	})
	c.OnError(func(err error) {
		util.LogWarning("%v", err)
	})

	if _, err := c.Open(ctx, cfg.Room, cfg.Endpoint); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer c.Close()

	util.StartStatsReporter(ctx, time.Second)

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if line == "/renegotiate" {
				if err := c.Renegotiate(); err != nil {
					util.LogWarning("renegotiate: %v", err)
				}
				continue
			}
			if err := c.Send([]byte(line)); err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// readLines forwards trimmed stdin lines until EOF.
func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://relay.example.com/signal)").
			Show()

		wsURL, err := config.NormalizeEndpoint(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askRoom prompts the user for a non-empty room id.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room").
			Show()

		if room := strings.TrimSpace(raw); room != "" {
			pterm.Println()
			return room
		}

		util.LogWarning("room must not be empty")
		pterm.Println()
	}
}
