package main

import (
	"context"
	"crypto/rand"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/agent"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/broadcast"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cmd/flags"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/common"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cryptoutils"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/httpserver"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/metrics"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/shares"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/storage"
)

var serviceLogFlag = flags.LogServiceFlagFn("coordinator")

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var participantsFlag = &cli.StringSliceFlag{
	Name:  "participants",
	Value: cli.NewStringSlice("user-1", "user-2", "user-3"),
	Usage: "registered participant identifiers",
}

func main() {
	app := &cli.App{
		Name:  "coordinator",
		Usage: "Serve the threshold-gated document access coordinator",
		Flags: append([]cli.Flag{
			listenAddrFlag,
			participantsFlag,
			flags.ThresholdFlag,
			flags.TotalParticipantsFlag,
			flags.StorageFlag,
			flags.OpenWindowFlag,
			flags.RequestTTLFlag,
			serviceLogFlag,
		}, flags.CommonFlags...),
		Action: runCoordinator,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCoordinator(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	listenAddr := cCtx.String(listenAddrFlag.Name)
	threshold := cCtx.Int(flags.ThresholdFlag.Name)
	participants := parseParticipants(cCtx.StringSlice(participantsFlag.Name))

	total := cCtx.Int(flags.TotalParticipantsFlag.Name)
	if len(participants) > total {
		total = len(participants)
	}

	// Storage
	factory := storage.NewStorageBackendFactory(logger)
	locations := make([]interfaces.StorageBackendLocation, 0)
	for _, uri := range cCtx.StringSlice(flags.StorageFlag.Name) {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			logger.Error("Invalid storage location", "uri", uri, "err", err)
			return err
		}
		locations = append(locations, location)
	}
	backend, err := factory.CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create storage backend", "err", err)
		return err
	}

	// Issue the session share bundle over a fresh master key
	masterKey := make([]byte, cryptoutils.DerivedKeyLength)
	if _, err := rand.Read(masterKey); err != nil {
		logger.Error("Failed to generate master key", "err", err)
		return err
	}
	bundle, err := shares.Issue(masterKey, participants, threshold)
	if err != nil {
		logger.Error("Failed to issue share bundle", "err", err)
		return err
	}
	bundleData, err := bundle.Marshal()
	if err != nil {
		return err
	}
	bundleID, err := backend.Store(cCtx.Context, bundleData, interfaces.ShareBundleType)
	if err != nil {
		logger.Error("Failed to store share bundle", "err", err)
		return err
	}
	logger.Info("Share bundle issued",
		"bundleID", bundleID.String(),
		"threshold", threshold,
		"participants", len(participants))

	source := shares.NewStorageSource(backend)
	source.SetBundleID(bundleID)
	resolver := shares.NewResolver(source, logger)

	// Metrics registry shared between the agent and the HTTP exporter
	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event relay plus the server-side replica attached to it
	hub := broadcast.NewHub(logger)
	go hub.Run(ctx)

	replica, err := agent.New(agent.Config{
		Session: coordinator.Config{
			Threshold:         threshold,
			TotalParticipants: total,
		},
		OpenWindow: cCtx.Duration(flags.OpenWindowFlag.Name),
		RequestTTL: cCtx.Duration(flags.RequestTTLFlag.Name),
		Metrics:    metricsSrv,
	}, resolver, hub, logger)
	if err != nil {
		logger.Error("Failed to create replica agent", "err", err)
		return err
	}
	go func() {
		if err := replica.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Replica agent stopped", "err", err)
		}
	}()

	handler := httpserver.NewHandler(replica, source, backend, logger)
	srv, err := httpserver.NewWithMetrics(flags.ConfigureServer(cCtx, logger, listenAddr), handler, hub.ServeWS, metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Coordinator is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	hub.Close()
	cancel()
	logger.Info("Coordinator shutdown complete")

	return nil
}

func parseParticipants(raw []string) []interfaces.ParticipantID {
	out := make([]interfaces.ParticipantID, 0, len(raw))
	for _, entry := range raw {
		id, err := interfaces.NewParticipantID(entry)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		out = []interfaces.ParticipantID{"user-1"}
	}
	return out
}
