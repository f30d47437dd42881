// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command flowtable-sim drives a flow table with a synthetic concurrent
// workload and reports what happened: per-category delete totals, table
// counters as Prometheus metrics and, optionally, a full table dump.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/flowtrack/internal/config"
	"grimm.is/flowtrack/internal/errors"
	"grimm.is/flowtrack/internal/flowtable"
	"grimm.is/flowtrack/internal/logging"
	"grimm.is/flowtrack/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL, YAML or JSON config file")
	initPath := flag.String("init", "", "Write a default config to this path and exit")
	workers := flag.Int("workers", 8, "Concurrent workers")
	ops := flag.Int("ops", 10000, "Operations per worker")
	flows := flag.Int("flows", 20000, "Size of the flow key space")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	noBlock := flag.Bool("no-block", false, "Insert with the no-block allocation policy")
	dump := flag.Bool("dump", false, "Print the table before teardown")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics on this address while running")
	linger := flag.Duration("linger", 0, "Keep serving metrics this long after the workload")
	flag.Parse()

	if *initPath != "" {
		if err := config.SaveFile(config.DefaultConfig(), *initPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default config to %s\n", *initPath)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *workers <= 0 || *ops < 0 || *flows <= 0 {
		log.Fatal("workers and flows must be positive, ops must not be negative")
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := flowtable.AllocMayBlock
	if *noBlock {
		policy = flowtable.AllocNoBlock
	}

	if err := simulate(ctx, cfg, workload{
		Workers: *workers,
		Ops:     *ops,
		Flows:   *flows,
		Seed:    *seed,
		Policy:  policy,
	}, *dump, *metricsAddr, *linger, logger); err != nil {
		logger.WithError(err).Error("Simulation failed")
		os.Exit(1)
	}
}

func simulate(ctx context.Context, cfg *config.Config, w workload, dump bool, metricsAddr string, linger time.Duration, logger *logging.Logger) error {
	tableCfg, err := cfg.FlowTable.TableConfig()
	if err != nil {
		return err
	}

	alloc := flowtable.NewTrackingAllocator(flowtable.NewPoolAllocator(cfg.FlowTable.Reserve()))
	table, err := flowtable.New(tableCfg,
		flowtable.WithAllocator(alloc),
		flowtable.WithLogger(logger.WithComponent("flowtable")))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(table, prometheus.Labels{"table": table.ID().String()}))

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("Metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.Info("Serving metrics", "addr", metricsAddr)
	}

	logger.Info("Starting workload",
		"workers", w.Workers,
		"ops", w.Ops,
		"flows", w.Flows,
		"seed", w.Seed,
		"policy", w.Policy.String(),
		"buckets", table.Buckets(),
		"bucket_capacity", table.BucketCapacity(),
		"hash", cfg.FlowTable.Hash)

	start := time.Now()
	res, err := run(ctx, table, w, logger)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			table.Close()
			return err
		}
		logger.Warn("Workload interrupted")
	}
	elapsed := time.Since(start)

	logger.Info("Workload finished",
		"elapsed", elapsed,
		"inserted", res.Inserted,
		"rejected", res.Rejected,
		"updated", res.Updated,
		"missed", res.Missed,
		"flows", table.Len())
	for cat := flowtable.Category(0); cat < flowtable.NumCategories; cat++ {
		logger.Info("Deleted flows",
			"category", cat.String(),
			"count", res.Deleted[cat],
			"magnitude", res.Magnitude[cat])
	}

	if err := logMetrics(reg, logger); err != nil {
		logger.WithError(err).Warn("Failed to gather metrics")
	}

	if dump {
		if err := table.Dump(os.Stdout); err != nil {
			table.Close()
			return err
		}
	} else if logger.Enabled(logging.LevelDebug) {
		table.LogTable(logger)
	}

	if metricsAddr != "" && linger > 0 {
		logger.Info("Lingering for scrapes", "duration", linger)
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
	}

	if err := table.Close(); err != nil {
		return err
	}

	as := alloc.Stats()
	logger.Info("Table closed",
		"allocs", as.Allocs,
		"frees", as.Frees,
		"live", as.Live,
		"alloc_failures", as.Failures,
		"double_frees", as.DoubleFrees)
	if as.Live != 0 || as.DoubleFrees != 0 {
		return errors.Errorf(errors.KindInternal, "record leak after teardown: %d live, %d double frees", as.Live, as.DoubleFrees)
	}
	return nil
}

// logMetrics gathers the registry once and logs every sample.
func logMetrics(reg prometheus.Gatherer, logger *logging.Logger) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			args := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "table" {
					continue
				}
				args = append(args, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetGauge() != nil:
				args = append(args, "value", m.GetGauge().GetValue())
			case m.GetCounter() != nil:
				args = append(args, "value", m.GetCounter().GetValue())
			}
			logger.Info("Metric", args...)
		}
	}
	return nil
}
