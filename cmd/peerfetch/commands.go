package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
	"github.com/MlkMahmud/peerfetch/internal/download"
	"github.com/MlkMahmud/peerfetch/internal/tracker"
	"github.com/MlkMahmud/peerfetch/internal/utils"
	"github.com/urfave/cli/v2"
)

func requireArgs(ctx *cli.Context, count int) error {
	if ctx.NArg() < count {
		return fmt.Errorf("'%s' expects %d argument(s): %s", ctx.Command.Name, count, ctx.Command.ArgsUsage)
	}

	return nil
}

func handleDecodeCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}

	value, err := bencode.Decode([]byte(ctx.Args().First()))

	if err != nil {
		return err
	}

	output, err := json.Marshal(value.Interface())

	if err != nil {
		return fmt.Errorf("failed to render decoded value as JSON: %w", err)
	}

	fmt.Println(string(output))

	return nil
}

func handleInfoCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}

	mi, err := sesh.LoadMetainfo(ctx.Args().First())

	if err != nil {
		return err
	}

	fmt.Printf("Tracker URL: %s\n", mi.Announce)
	fmt.Printf("Length: %d\n", mi.Length)
	fmt.Printf("Info Hash: %x\n", mi.ContentID())
	fmt.Printf("Piece Length: %d\n", mi.PieceLength)
	fmt.Println("Piece Hashes:")

	for _, hash := range mi.PieceHashes {
		fmt.Printf("%x\n", hash)
	}

	return nil
}

func handlePeersCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}

	mi, err := sesh.LoadMetainfo(ctx.Args().First())

	if err != nil {
		return err
	}

	peers, err := sesh.NewClient(nil).Peers(ctx.Context, mi)

	if err != nil {
		return err
	}

	for _, peer := range peers {
		fmt.Println(peer)
	}

	return nil
}

func handleHandshakeCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}

	mi, err := sesh.LoadMetainfo(ctx.Args().Get(0))

	if err != nil {
		return err
	}

	address, err := tracker.ParsePeerAddress(ctx.Args().Get(1))

	if err != nil {
		return err
	}

	conn, err := sesh.NewClient(nil).Connect(ctx.Context, mi, address.String())

	if err != nil {
		return err
	}

	defer conn.Close()

	fmt.Printf("Peer ID: %x\n", conn.RemotePeerID())

	return nil
}

func handleDownloadPieceCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}

	mi, err := sesh.LoadMetainfo(ctx.Args().Get(0))

	if err != nil {
		return err
	}

	index, err := strconv.Atoi(ctx.Args().Get(1))

	if err != nil {
		return fmt.Errorf("invalid piece index '%s': %w", ctx.Args().Get(1), err)
	}

	outputPath := ctx.String("output")
	client := sesh.NewClient(nil)

	err = utils.WriteFileAtomic(outputPath, func(file *os.File) error {
		return client.DownloadPiece(ctx.Context, mi, index, file)
	})

	if err != nil {
		return err
	}

	fmt.Printf("Piece %d downloaded to %s.\n", index, outputPath)

	return nil
}

func handleDownloadCommand(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}

	src := ctx.Args().First()
	mi, err := sesh.LoadMetainfo(src)

	if err != nil {
		return err
	}

	var progress download.Progress

	if ctx.Bool("progress") {
		bar := &progressBar{}
		defer bar.Stop()

		progress = bar
	}

	outputPath := ctx.String("output")
	client := sesh.NewClient(progress)

	err = utils.WriteFileAtomic(outputPath, func(file *os.File) error {
		return client.Download(ctx.Context, mi, file)
	})

	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %s to %s.\n", src, outputPath)

	return nil
}
