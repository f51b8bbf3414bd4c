package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/store"
	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	"github.com/zatekoja/reviewgate/backend/pkg/config"
)

// probe writes and removes one diagnostic document, the same check the
// admin console runs, and exits non-zero when it fails.
func main() {
	var agent string
	var timeout time.Duration

	flag.StringVar(&agent, "agent", "reviewgate-probe", "Agent recorded in the diagnostic document")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for the check")
	flag.Parse()

	cfg, err := config.LoadWithSecrets(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("reviewgate-probe", cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Fatal().Msg("STORE_DRIVER=memory has nothing to probe")
	}

	var gateway *services.PersistenceGateway
	notices := services.NewNoticeBoard(0)
	if cfg.StoreConfigured() {
		// The check reports an unreachable server itself.
		pgClient, err := postgres.Open(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		defer pgClient.Close()
		gateway = services.NewPersistenceGateway(store.NewPostgresStore(pgClient, nil, 0), true, notices, nil)
	} else {
		gateway = services.NewPersistenceGateway(nil, false, notices, nil)
	}

	probe := services.NewDiagnosticProbe(gateway, services.NewAdminPanel(), nil)
	result, err := probe.Run(ctx, agent)
	if err != nil {
		log.Fatal().Err(err).Msg("Diagnostic check could not run")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to print result")
	}

	if !result.OK {
		if result.Category == entities.ProbeCategoryPermissionDenied {
			fmt.Fprintln(os.Stderr, store.GrantStatement(cfg.Database.User))
		}
		os.Exit(1)
	}
}
