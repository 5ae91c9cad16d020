package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	pg "coachhire-ai/internal/infra/db/postgres"
	"coachhire-ai/internal/infra/logging"
	"coachhire-ai/internal/usecase"
)

// demoSuppliers is a small Yorkshire roster for local end-to-end runs.
var demoSuppliers = []*model.Supplier{
	{ID: "sup-leeds-coaches", Name: "Leeds City Coaches", Email: "bookings@leedscoaches.example", Region: "West Yorkshire",
		Lat: 53.7997, Lng: -1.5492, Rating: 4.6, Reliability: 0.95, AvgResponseHours: 2, FleetTypes: []string{"coach", "midi"}, MaxPassengers: 57, Active: true},
	{ID: "sup-york-travel", Name: "York Minster Travel", Email: "ops@yorkminster.example", Region: "North Yorkshire",
		Lat: 53.9590, Lng: -1.0815, Rating: 4.2, Reliability: 0.9, AvgResponseHours: 5, FleetTypes: []string{"coach"}, MaxPassengers: 70, Active: true},
	{ID: "sup-sheffield-minis", Name: "Steel City Minibuses", Email: "hello@steelminis.example", Region: "South Yorkshire",
		Lat: 53.3811, Lng: -1.4701, Rating: 3.8, Reliability: 0.8, AvgResponseHours: 12, FleetTypes: []string{"minibus", "midi"}, MaxPassengers: 33, Active: true},
	{ID: "sup-hull-executive", Name: "Humber Executive", Email: "quotes@humberexec.example", Region: "East Yorkshire",
		Lat: 53.7676, Lng: -0.3274, Rating: 4.9, Reliability: 0.98, AvgResponseHours: 1, FleetTypes: []string{"executive", "coach"}, MaxPassengers: 49, Active: true},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	withSuppliers := flag.Bool("suppliers", false, "also upsert the demo supplier roster")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	n, err := usecase.NewAIConfigService(pg.NewAiConfigRepo(pool), logger).EnsureDefaults(ctx, "seed")
	if err != nil {
		logger.Fatal().Err(err).Msg("seed ai config")
	}
	fmt.Printf("ai config: %d keys seeded\n", n)

	n, err = usecase.NewPricingUseCase(pg.NewModelPricingRepo(pool), logger).EnsureDefaults(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed model pricing")
	}
	fmt.Printf("model pricing: %d models seeded\n", n)

	if !*withSuppliers {
		return
	}
	suppliers := pg.NewSupplierRepo(pool)
	for _, s := range demoSuppliers {
		if err := suppliers.Save(ctx, repository.NoTX, s); err != nil {
			logger.Fatal().Err(err).Str("supplier", s.ID).Msg("seed supplier")
		}
		fmt.Printf("supplier: %s (%s, rating %.1f, up to %d seats)\n", s.Name, s.Region, s.Rating, s.MaxPassengers)
	}
}
