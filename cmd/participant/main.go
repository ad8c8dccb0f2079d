package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/agent"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/api/clients"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/broadcast"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cmd/flags"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/shares"
)

var serviceLogFlag = flags.LogServiceFlagFn("participant")

var coordinatorURLFlag = &cli.StringFlag{
	Name:  "coordinator-url",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the coordinator API",
}

var userFlag = &cli.StringFlag{
	Name:     "user",
	Required: true,
	Usage:    "participant identifier to act as",
}

func main() {
	app := &cli.App{
		Name:  "participant",
		Usage: "Join an access session as a participant replica",
		Flags: append([]cli.Flag{
			coordinatorURLFlag,
			userFlag,
			flags.ThresholdFlag,
			flags.TotalParticipantsFlag,
			flags.OpenWindowFlag,
			flags.RequestTTLFlag,
			serviceLogFlag,
		}, flags.CommonFlags...),
		Action: runParticipant,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// emptySource has no issued bundle; the resolver serves deterministic
// fallback shares, same as a participant that never fetched its token.
type emptySource struct{}

func (emptySource) Shares(context.Context) (map[interfaces.ParticipantID]interfaces.Share, error) {
	return map[interfaces.ParticipantID]interfaces.Share{}, nil
}

func runParticipant(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	self, err := interfaces.NewParticipantID(cCtx.String(userFlag.Name))
	if err != nil {
		return err
	}
	baseURL := cCtx.String(coordinatorURLFlag.Name)
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel, err := broadcast.Dial(ctx, wsURL, logger)
	if err != nil {
		logger.Error("Failed to connect to coordinator", "err", err)
		return err
	}
	defer channel.Close()

	resolver := shares.NewResolver(emptySource{}, logger)
	replica, err := agent.New(agent.Config{
		Session: coordinator.Config{
			Threshold:         cCtx.Int(flags.ThresholdFlag.Name),
			TotalParticipants: cCtx.Int(flags.TotalParticipantsFlag.Name),
		},
		OpenWindow: cCtx.Duration(flags.OpenWindowFlag.Name),
		RequestTTL: cCtx.Duration(flags.RequestTTLFlag.Name),
	}, resolver, channel, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := replica.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Replica stopped", "err", err)
			cancel()
		}
	}()

	client := clients.NewAccessClient(baseURL)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-exit
		cancel()
		os.Stdin.Close()
	}()

	fmt.Printf("Joined as %s. Commands: request, grant, open, reset, status, shares, unseal <content-id> <key-hex>, quit\n", self)
	return actionLoop(ctx, replica, client, self, logger)
}

func actionLoop(ctx context.Context, replica *agent.Agent, client *clients.AccessClient, self interfaces.ParticipantID, logger *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "request":
			printOutcome(replica.RequestAccess(ctx, self))
		case "grant":
			printOutcome(replica.GrantAccess(ctx, self))
		case "open":
			printOutcome(replica.OpenDocument(ctx, self))
		case "reset":
			printOutcome(replica.Reset(ctx))
		case "status":
			local := replica.Status()
			fmt.Printf("local: epoch=%s phase=%s requester=%s grants=%v\n",
				local.Epoch, local.PhaseName, local.Requester, local.GrantOrder)
			remote, unauthorized, err := client.Status(ctx)
			if err != nil {
				fmt.Printf("coordinator unreachable: %v\n", err)
				continue
			}
			fmt.Printf("coordinator: epoch=%s phase=%s requester=%s grants=%v unauthorized=%d\n",
				remote.Epoch, remote.PhaseName, remote.Requester, remote.GrantOrder, unauthorized)
		case "shares":
			issued, err := client.Shares(ctx)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			for participant, share := range issued {
				fmt.Printf("%s: %s\n", participant, share)
			}
		case "unseal":
			if len(fields) != 3 {
				fmt.Println("usage: unseal <content-id> <key-hex>")
				continue
			}
			document, err := client.UnsealDocument(ctx, self, fields[1], fields[2])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("document:\n%s\n", document)
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Error("Input closed", "err", err)
	}
	return nil
}

func printOutcome(snap coordinator.Snapshot, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("ok: epoch=%s phase=%s requester=%s grants=%v\n",
		snap.Epoch, snap.PhaseName, snap.Requester, snap.GrantOrder)
}
