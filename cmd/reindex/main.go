package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/collision-estimator/internal/observability/logging"
)

// reindex asks running estimator processes to rebuild their index. With
// NATS_URL set it publishes to the reindex subject so every subscriber
// rebuilds; otherwise it calls the rebuild endpoint of one API instance.
func main() {
	reason := flag.String("reason", "manual", "reason recorded with the request")
	apiURL := flag.String("api", "", "API base URL used when NATS_URL is unset (default http://localhost:$API_PORT)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := logging.NewJSONLogger("reindex", cfg.LogLevel)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if cfg.NATSURL != "" {
		retry := false
		bus, err := nats.New(cfg.NATSURL, cfg.CorpusReindexSubject, nats.Options{
			ClientName:           "collision-estimator-reindex",
			RetryOnFailedConnect: &retry,
			Logger:               logger,
		})
		if err != nil {
			logger.Error("connect reindex bus", "error", err)
			os.Exit(1)
		}
		defer bus.Close()

		if err := bus.PublishReindexRequested(ctx, *reason); err != nil {
			logger.Error("publish reindex request", "error", err)
			os.Exit(1)
		}
		logger.Info("reindex requested", "subject", cfg.CorpusReindexSubject, "reason", *reason)
		return
	}

	base := strings.TrimRight(*apiURL, "/")
	if base == "" {
		base = "http://localhost:" + cfg.APIPort
	}
	if err := rebuildViaAPI(ctx, base); err != nil {
		logger.Error("rebuild via api", "url", base, "error", err)
		os.Exit(1)
	}
	logger.Info("index rebuilt", "url", base, "reason", *reason)
}

func rebuildViaAPI(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/index/rebuild", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
