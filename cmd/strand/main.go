// Strand is an interactive command-line client for WebSocket servers:
// it connects to a given URL, relays lines from its standard input as
// text messages, and prints incoming data messages as they arrive.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/strand/internal/logger"
	"github.com/tzrikka/strand/pkg/websocket"
	"github.com/tzrikka/xdg"
)

const (
	ConfigDirName  = "strand"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:      "strand",
		Usage:     "Interactive command-line client for WebSocket servers",
		Version:   bi.Main.Version,
		ArgsUsage: "ws://... or wss://...",
		Flags:     flags(),
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	path := configFile()

	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "verbose and human-readable console logging",
		},
		&cli.StringSliceFlag{
			Name:    "header",
			Aliases: []string{"H"},
			Usage:   `additional handshake header ("Key: Value"), repeatable`,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("STRAND_HEADERS"),
				toml.TOML("client.headers", path),
			),
		},
		&cli.BoolFlag{
			Name:  "binary",
			Usage: "send input lines as binary messages instead of text",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("STRAND_BINARY"),
				toml.TOML("client.binary", path),
			),
		},
	}
}

// configFile returns the path to the app's configuration file.
// It also creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

// initLog initializes the process-wide logger, based on
// whether the tool is running in development mode or not.
func initLog(devMode bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if devMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	initLog(cmd.Bool("dev"))

	url := cmd.Args().First()
	if url == "" {
		return errors.New("missing WebSocket URL argument")
	}

	opts := make([]websocket.DialOpt, 0, len(cmd.StringSlice("header")))
	for _, h := range cmd.StringSlice("header") {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q, want \"Key: Value\"", h)
		}
		opts = append(opts, websocket.WithHTTPHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}

	conn, err := websocket.Dial(logger.WithContext(ctx, &log.Logger), url, opts...)
	if err != nil {
		return err
	}

	go relayStdin(conn, cmd.Bool("binary"))

	for msg := range conn.IncomingMessages() {
		fmt.Printf("< %s\n", msg.Data)
	}

	return nil
}

// relayStdin sends each line of the standard input to the server as a
// data message, and initiates a closing handshake when the input ends.
func relayStdin(conn *websocket.Conn, binary bool) {
	send := conn.SendTextMessage
	if binary {
		send = conn.SendBinaryMessage
	}

	s := bufio.NewScanner(os.Stdin)
	for s.Scan() {
		if err := <-send(s.Bytes()); err != nil {
			log.Err(err).Msg("failed to send WebSocket data message")
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure)
}
