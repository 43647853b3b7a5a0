package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"campusconnect/api/internal/config"
	"campusconnect/api/internal/search"
	"campusconnect/api/internal/store"
)

var (
	cfg     = config.Load()
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "indexer",
	Short:         "Operate the notes search index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.MeiliURL, "meili-url", cfg.MeiliURL, "Meilisearch address (MEILI_URL)")
	flags.StringVar(&cfg.MeiliMasterKey, "meili-key", cfg.MeiliMasterKey, "Meilisearch admin key (MEILI_MASTER_KEY)")
	flags.StringVar(&cfg.MeiliIndex, "index", cfg.MeiliIndex, "index uid (MEILI_INDEX)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "record source connection string (DATABASE_URL)")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the command")
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func openEngine() (*search.Meili, error) {
	if cfg.MeiliURL == "" {
		return nil, fmt.Errorf("meilisearch address is required")
	}
	return search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex, search.DefaultIndexSettings(cfg.MeiliMaxTotalHits)), nil
}

func openNotes(ctx context.Context) (*store.PostgresStore, func(), error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}
