package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/config"
	"github.com/chatbi/chatbi/internal/recall"
	"github.com/chatbi/chatbi/internal/warehouse"
)

func main() {
	days := flag.Int("days", 90, "days of demo facts to generate")
	seed := flag.Int64("seed", 42, "random seed for generated facts")
	skipFacts := flag.Bool("skip-facts", false, "only migrate schema and seed the metric graph")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("chatbi-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Warehouse.Driver != "postgres" {
		fmt.Fprintln(os.Stderr, "seeding targets the postgres warehouse; set CHATBI_WAREHOUSE_DRIVER=postgres")
		os.Exit(1)
	}

	registry, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := warehouse.Open(ctx, warehouse.DBConfig{
		DSN:          cfg.Warehouse.DSN,
		MaxOpenConns: cfg.Warehouse.MaxOpenConns,
		MaxIdleConns: cfg.Warehouse.MaxIdleConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warehouse open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := warehouse.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("star schema applied")

	if !*skipFacts {
		if err := warehouse.Seed(ctx, db, warehouse.SeedConfig{Days: *days, Seed: *seed}); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("seeded %d day(s) of demo facts\n", *days)
	}

	graph := recall.NewGraphRecaller(db)
	if err := graph.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graph migrate failed: %v\n", err)
		os.Exit(1)
	}
	if err := graph.SeedFromCatalog(ctx, registry); err != nil {
		fmt.Fprintf(os.Stderr, "graph seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("metric graph seeded with %d metric(s)\n", len(registry.All()))

	if cfg.Qdrant.Enabled {
		if err := indexQdrant(ctx, cfg, registry); err != nil {
			fmt.Fprintf(os.Stderr, "qdrant index failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("qdrant collection %q indexed\n", cfg.Qdrant.Collection)
	}
}

func indexQdrant(ctx context.Context, cfg config.Config, registry *catalog.Registry) error {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return err
	}

	var embedder recall.Embedder
	if cfg.Embedder.Provider == "genai" {
		embedder, err = recall.NewGenAIEmbedder(ctx, cfg.Embedder.Project, cfg.Embedder.Location, cfg.Embedder.Model)
		if err != nil {
			return err
		}
	} else {
		embedder = recall.NewHashEmbedder(cfg.Qdrant.VectorDim)
	}

	recaller := recall.NewQdrantRecaller(client, cfg.Qdrant.Collection, embedder)
	if err := recaller.EnsureCollection(ctx, uint64(cfg.Qdrant.VectorDim)); err != nil {
		return err
	}
	return recaller.IndexMetrics(ctx, registry.All())
}
