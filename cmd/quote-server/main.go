package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/transferhub/farequote/internal/app/server"
	"github.com/transferhub/farequote/internal/cache/configcache"
	"github.com/transferhub/farequote/internal/cache/redisstore"
	"github.com/transferhub/farequote/internal/config"
	"github.com/transferhub/farequote/internal/invalidation/kafkaconsumer"
	"github.com/transferhub/farequote/internal/logger"
	"github.com/transferhub/farequote/internal/observability"
	"github.com/transferhub/farequote/internal/pricing/calculator"
	"github.com/transferhub/farequote/internal/pricing/lookup"
	"github.com/transferhub/farequote/internal/pricing/resolve"
	"github.com/transferhub/farequote/internal/pricing/surcharge"
	"github.com/transferhub/farequote/internal/regionindex"
	"github.com/transferhub/farequote/internal/router"
	"github.com/transferhub/farequote/internal/store"
	"github.com/transferhub/farequote/internal/store/memstore"
	"github.com/transferhub/farequote/internal/store/pgstore"
	"github.com/transferhub/farequote/internal/vehicles"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	seedFlag := flag.String("seed", "", "seed file for the in-memory store (overrides SEED_FILE)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}
	if *seedFlag != "" {
		cfg.SeedFile = strings.TrimSpace(*seedFlag)
	}

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "quote-server",
	}, os.Stdout)

	observability.ExposeBuildInfo(Version)
	log.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("store", cfg.StoreDriver).
		Bool("cache", cfg.CacheEnabled).
		Msg("starting quote-server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := map[string]func(context.Context) error{}

	regionStore, priceStore, vehicleStore, cleanup, err := buildStores(ctx, cfg, readiness)
	if err != nil {
		log.Error().Err(err).Msg("store setup failed")
		return 1
	}
	defer cleanup()

	resolveOpts := []resolve.Option{}
	var indexKeeper *regionindex.Keeper
	if cfg.RegionIndexEnabled {
		indexKeeper, err = regionindex.NewKeeper(ctx, regionStore, cfg.RegionIndexRes, log)
		if err != nil {
			log.Error().Err(err).Msg("region index build failed")
			return 1
		}
		go indexKeeper.Run(ctx, cfg.RegionIndexRefresh)
		resolveOpts = append(resolveOpts, resolve.WithIndex(indexKeeper))
		log.Info().
			Int("resolution", cfg.RegionIndexRes).
			Dur("refresh", cfg.RegionIndexRefresh).
			Msg("region index built")
	}

	if cfg.CacheEnabled {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Error().Err(err).Str("redis", cfg.RedisAddr).Msg("redis setup failed")
			return 1
		}
		defer func() { _ = rc.Close() }()
		readiness["redis"] = rc.Ping

		cc := configcache.New(priceStore, rc,
			configcache.WithTTL(cfg.CacheTTL),
			configcache.WithOpTimeout(cfg.CacheOpTimeout),
			configcache.WithLogger(log),
		)
		priceStore = cc

		if cfg.Invalidation.Enabled {
			kcfg := kafkaconsumer.NewConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
			var copts []kafkaconsumer.Option
			if indexKeeper != nil {
				copts = append(copts, kafkaconsumer.WithIndexRebuilder(indexKeeper))
			}
			consumer, err := kafkaconsumer.New(kcfg, cc, log, copts...)
			if err != nil {
				log.Error().Err(err).Msg("invalidation consumer setup failed")
				return 1
			}
			go func() {
				if err := consumer.Start(ctx); err != nil {
					log.Error().Err(err).Msg("invalidation consumer stopped")
				}
			}()
		}
	} else if cfg.Invalidation.Enabled {
		log.Warn().Msg("invalidation enabled without cache, ignoring")
	}

	catalog, err := vehicles.NewCatalog(vehicleStore, cfg.VehicleCacheSize)
	if err != nil {
		log.Error().Err(err).Msg("vehicle catalog setup failed")
		return 1
	}

	calc := calculator.New(
		resolve.New(regionStore, resolveOpts...),
		lookup.New(priceStore),
		surcharge.New(priceStore),
		catalog,
		calculator.DefaultExtras(),
		log,
	)

	srv := server.New(calc, router.Estimator{AvgSpeedKmh: cfg.AvgSpeedKmh}, readiness, log)
	if err := server.Run(ctx, cfg.Addr, srv.Routes(), log); err != nil {
		log.Error().Err(err).Msg("server error")
		return 1
	}
	log.Info().Msg("server stopped")
	return 0
}

func buildStores(ctx context.Context, cfg config.Config, readiness map[string]func(context.Context) error) (store.RegionStore, store.PriceStore, store.VehicleStore, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		readiness["postgres"] = pg.Ping
		return pg, pg, pg, pg.Close, nil
	default:
		mem := memstore.New()
		if cfg.SeedFile != "" {
			if err := mem.LoadSeed(cfg.SeedFile); err != nil {
				return nil, nil, nil, nil, err
			}
		}
		return mem, mem, mem, func() {}, nil
	}
}
