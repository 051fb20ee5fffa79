package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"facility-search-workers/internal/common/config"
	"facility-search-workers/internal/common/database"
	"facility-search-workers/internal/common/logger"
	ec "facility-search-workers/internal/workers/hybrid-search/enrichment-cache"

	"github.com/redis/go-redis/v9"
)

func main() {
	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	invalidateCmd := flag.NewFlagSet("invalidate", flag.ExitOnError)
	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	var configPath string
	for _, fs := range []*flag.FlagSet{statsCmd, invalidateCmd, purgeCmd, migrateCmd} {
		fs.StringVar(&configPath, "config", "", "Path to config file (default: configs/config.yaml lookup)")
	}

	entity := invalidateCmd.String("entity", "", "Entity cache key (NPI, or id:<n>)")
	fields := invalidateCmd.String("fields", "", "Comma-separated fields to drop (default: all)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var run func(ctx context.Context, cache *ec.Cache) error
	switch os.Args[1] {
	case "stats":
		statsCmd.Parse(os.Args[2:])
		run = printStats

	case "invalidate":
		invalidateCmd.Parse(os.Args[2:])
		if *entity == "" {
			fmt.Println("Error: entity is required for invalidate.")
			invalidateCmd.Usage()
			os.Exit(1)
		}
		run = func(ctx context.Context, cache *ec.Cache) error {
			n, err := cache.Invalidate(ctx, *entity, splitFields(*fields)...)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries for %s\n", n, *entity)
			return nil
		}

	case "purge":
		purgeCmd.Parse(os.Args[2:])
		run = func(ctx context.Context, cache *ec.Cache) error {
			n, err := cache.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d expired entries\n", n)
			return nil
		}

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		run = func(ctx context.Context, cache *ec.Cache) error {
			if err := cache.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Cache schema is up to date.")
			return nil
		}

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err := withCache(configPath, run); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func withCache(configPath string, run func(ctx context.Context, cache *ec.Cache) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cacheCfg := &ec.Config{
		TTL:       cfg.Pipeline.Cache.CacheTTL(),
		Table:     cfg.Pipeline.Cache.Table,
		KeyPrefix: cfg.Pipeline.Cache.KeyPrefix,
		Timeout:   config.GetDuration(cfg.Pipeline.Cache.TimeoutMs),
	}

	var rdb *redis.Client
	var pg *database.PostgresClient
	switch cfg.Pipeline.Cache.Backend {
	case ec.BackendRedis:
		rc := database.NewRedis(cfg.Database.Redis)
		defer rc.Close()
		rdb = rc.Client
	case ec.BackendMemory:
		return fmt.Errorf("the memory cache lives inside the worker process and cannot be administered")
	default:
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
	}

	var db *sql.DB
	if pg != nil {
		db = pg.DB
	}
	backend, err := ec.OpenBackend(cfg.Pipeline.Cache.Backend, db, rdb, cacheCfg)
	if err != nil {
		return err
	}

	log := logger.NewStructured(cfg.Logging.Level, "console")
	return run(ctx, ec.NewCache(cacheCfg, backend, log))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func printStats(ctx context.Context, cache *ec.Cache) error {
	stats, err := cache.Stats(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func help() {
	fmt.Println("Usage: enrichment-cache-admin <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  stats       Show live and expired entries per field")
	fmt.Println("  invalidate  Drop cached fields for one entity (-entity, -fields)")
	fmt.Println("  purge       Delete expired entries")
	fmt.Println("  migrate     Create the cache table if missing")
	fmt.Println("  help        Show this help message")
	fmt.Println("All commands accept -config <path>.")
}
