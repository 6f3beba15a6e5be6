package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/logging"
	"github.com/MlkMahmud/peerfetch/internal/session"
	"github.com/urfave/cli/v2"
)

var (
	flushLogs func() error
	logger    *slog.Logger
	sesh      *session.Session
)

var outputFlag = &cli.StringFlag{
	Name:     "output",
	Aliases:  []string{"o"},
	Usage:    "path the downloaded data is written to",
	Required: true,
}

var app = &cli.App{
	Name:        "peerfetch",
	Usage:       "Fetch a file from a BitTorrent swarm.",
	Description: "A minimal single-peer BitTorrent client",
	Before: func(ctx *cli.Context) error {
		logLevel := slog.LevelError

		if ctx.Bool("debug") {
			logLevel = slog.LevelDebug
		}

		var err error

		logger, flushLogs, err = logging.New(logging.Options{Format: ctx.String("log-format"), Level: logLevel})

		if err != nil {
			return err
		}

		sesh = session.NewSession(session.SessionOpts{
			Config: session.Config{
				EnableDHT:      ctx.Bool("dht"),
				PeerTimeout:    ctx.Duration("peer-timeout"),
				TrackerTimeout: ctx.Duration("tracker-timeout"),
			},
			Logger: logger,
		})

		return nil
	},
	After: func(ctx *cli.Context) error {
		if flushLogs != nil {
			flushLogs()
		}

		return nil
	},
	Commands: []*cli.Command{
		{
			Name:      "decode",
			Usage:     "prints a bencoded value as JSON",
			ArgsUsage: "<bencoded value>",
			Action:    handleDecodeCommand,
		},
		{
			Name:      "info",
			Usage:     "prints the tracker, length, info hash and piece hashes of a torrent file",
			ArgsUsage: "<torrent file>",
			Action:    handleInfoCommand,
		},
		{
			Name:      "peers",
			Usage:     "lists the peers the tracker returns for a torrent file",
			ArgsUsage: "<torrent file>",
			Action:    handlePeersCommand,
		},
		{
			Name:      "handshake",
			Usage:     "performs a handshake with a peer and prints its peer id",
			ArgsUsage: "<torrent file> <ip:port>",
			Action:    handleHandshakeCommand,
		},
		{
			Name:      "download_piece",
			Usage:     "downloads and verifies a single piece",
			ArgsUsage: "<torrent file> <piece index>",
			Action:    handleDownloadPieceCommand,
			Flags:     []cli.Flag{outputFlag},
		},
		{
			Name:      "download",
			Usage:     "downloads the whole file from the first available peer",
			ArgsUsage: "<torrent file>",
			Action:    handleDownloadCommand,
			Flags:     []cli.Flag{outputFlag},
		},
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "enable debug logging output for troubleshooting and development",
			EnvVars: []string{"PEERFETCH_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text, json or console",
			Value:   logging.FormatText,
			EnvVars: []string{"PEERFETCH_LOG_FORMAT"},
		},
		&cli.DurationFlag{
			Name:    "peer-timeout",
			Usage:   "timeout for each read or write on a peer connection (0 waits indefinitely)",
			EnvVars: []string{"PEERFETCH_PEER_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "tracker-timeout",
			Usage:   "timeout for a tracker announce request",
			Value:   15 * time.Second,
			EnvVars: []string{"PEERFETCH_TRACKER_TIMEOUT"},
		},
		&cli.BoolFlag{
			Name:    "dht",
			Usage:   "look peers up in the DHT when the tracker returns none",
			EnvVars: []string{"PEERFETCH_DHT"},
		},
		&cli.BoolFlag{
			Name:    "progress",
			Usage:   "show a progress bar while downloading",
			EnvVars: []string{"PEERFETCH_PROGRESS"},
		},
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
