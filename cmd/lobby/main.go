package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/callsession"
	"github.com/eleven-am/spark-backend/internal/client"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/joho/godotenv"
)

// headlessTransport stands in for the media SDK: it treats a valid join
// grant as a connected session.
type headlessTransport struct{}

func (headlessTransport) Connect(_ context.Context, grant *dto.JoinResponse) (<-chan error, error) {
	if grant.Token == "" || grant.Room == "" {
		return nil, errors.New("empty join grant")
	}
	fmt.Printf("[LOBBY] Media room %s as %s\n", grant.Room, grant.Identity)
	return nil, nil
}

func (headlessTransport) Close() error { return nil }

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("SPARK_API_URL", "http://localhost:8080/v1"), "API base URL")
	token := flag.String("token", os.Getenv("SPARK_TOKEN"), "bearer token")
	poolID := flag.String("pool", "", "pool to join")
	choice := flag.String("decision", "ask", "spark, pass or ask")
	interval := flag.Duration("poll-interval", envDuration("POLL_INTERVAL", notify.DefaultPollInterval), "pairing poll interval")
	attempts := flag.Int("poll-attempts", envInt("POLL_MAX_ATTEMPTS", notify.DefaultPollMaxAttempts), "pairing attempts before giving up")
	skew := flag.Duration("skew", envDuration("CLOCK_SKEW_TOLERANCE", callsession.DefaultSkewTolerance), "how early decisions may open against the local clock")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *token == "" || *poolID == "" {
		fmt.Fprintln(os.Stderr, "usage: lobby -token <jwt> -pool <pool_id> [-decision spark|pass|ask]")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(*apiURL, *token)

	entry, err := api.Admit(ctx, *poolID)
	if err != nil {
		fail("admission failed", err)
	}
	fmt.Printf("[LOBBY] In line for %s since %s\n", entry.PoolID, entry.JoinedAt.Format(time.Kitchen))

	callID, err := waitForMatch(ctx, api, *poolID, notify.NewPoller(*interval, *attempts), logger)
	if errors.Is(err, notify.ErrExhausted) {
		fmt.Println("[LOBBY] No match this time, try again.")
		_ = api.LeaveQueue(context.WithoutCancel(ctx), *poolID)
		return
	}
	if err != nil {
		_ = api.LeaveQueue(context.WithoutCancel(ctx), *poolID)
		fail("pairing failed", err)
	}
	fmt.Printf("[LOBBY] Matched! Call %s\n", callID)

	driver := callsession.NewDriver(api, api, headlessTransport{}, decider(*choice), driverConfig(*skew), nil, logger)
	go func() {
		for p := range driver.Phases() {
			fmt.Printf("[LOBBY] Phase: %s\n", p)
		}
	}()

	res := driver.Run(ctx, callID)
	switch res.Phase {
	case callsession.PhaseMutualSpark:
		fmt.Println("[LOBBY] It's a spark! You can now find each other in your connections.")
	case callsession.PhaseNoSpark:
		fmt.Println("[LOBBY] Thanks for chatting.")
	default:
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			fail("call ended", res.Err)
		}
		fmt.Println("[LOBBY] Call ended.")
	}
}

// waitForMatch polls pair on the bounded schedule. Queue notifications wake
// the poller early when the stream is available.
func waitForMatch(ctx context.Context, api *client.Client, poolID string, poller notify.Poller, logger *slog.Logger) (string, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wake, err := api.WatchQueue(watchCtx, poolID)
	if err != nil {
		logger.Debug("queue stream unavailable, polling only", "error", err)
	}

	var callID string
	err = poller.Run(ctx, wake, func(ctx context.Context) (bool, error) {
		resp, err := api.Pair(ctx, poolID)
		if err != nil {
			var apiErr *client.Error
			if errors.As(err, &apiErr) && apiErr.Temporary() {
				logger.Debug("pair attempt failed", "error", err)
				return false, nil
			}
			return false, err
		}
		if resp.Status != "matched" {
			fmt.Println("[LOBBY] Still waiting...")
			return false, nil
		}
		callID = resp.CallID
		return true, nil
	})
	return callID, err
}

func decider(choice string) callsession.DecideFunc {
	return func(ctx context.Context, _ *call.View) (call.Decision, error) {
		if d := call.Decision(choice); d.Valid() {
			return d, nil
		}
		answers := make(chan string, 1)
		go func() {
			fmt.Print("[LOBBY] Time's up. spark or pass? ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			answers <- strings.TrimSpace(strings.ToLower(line))
		}()
		select {
		case <-ctx.Done():
			return call.DecisionUnset, ctx.Err()
		case a := <-answers:
			if d := call.Decision(a); d.Valid() {
				return d, nil
			}
			return call.DecisionPass, nil
		}
	}
}

func driverConfig(skew time.Duration) callsession.DriverConfig {
	cfg := callsession.DefaultDriverConfig()
	cfg.Session.SkewTolerance = skew
	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if i, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return i
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "[LOBBY] %s: %v\n", msg, err)
	os.Exit(1)
}
