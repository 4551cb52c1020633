package pgo

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dorki/natsengine/pkg/metrics"
	"github.com/dorki/natsengine/pkg/natsengine"
	"github.com/dorki/natsengine/pkg/natsengine/format"
	"github.com/dorki/natsengine/pkg/natsengine/memcatalog"
	"github.com/dorki/natsengine/pkg/natsengine/schedule"
	"github.com/dorki/natsengine/pkg/pipeline/peer/clickhouse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	prometheusEnabled bool
	prometheusAddr    string
)

var natsEngineCmd = &cobra.Command{
	Use:   "natsengine",
	Short: "Serve configured NATS subjects as queryable tables",
	Long:  `Attach one Engine per configured table, streaming into its dependent ClickHouse views while any are registered.`,
	RunE:  runNatsEngine,
}

func init() {
	natsEngineCmd.Flags().BoolVar(&prometheusEnabled, "metrics", true, "Enable Prometheus metrics server")
	natsEngineCmd.Flags().StringVar(&prometheusAddr, "metrics-addr", ":9100", "Prometheus metrics server address")
	rootCmd.AddCommand(natsEngineCmd)
}

func runNatsEngine(cmd *cobra.Command, args []string) error {
	if !cfg.NatsEngine.Enabled {
		return fmt.Errorf("natsEngine.enabled is false in config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if prometheusEnabled {
		go metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: prometheusAddr})
	}

	chPeer := &clickhouse.PeerClickHouse{}
	if err := chPeer.Connect(cfg.NatsEngine.ClickHouse); err != nil {
		return fmt.Errorf("connect to ClickHouse: %w", err)
	}
	defer chPeer.Disconnect()
	views := clickhouse.NewViewSink(chPeer)

	catalog := memcatalog.New()
	for _, t := range cfg.NatsEngine.Tables {
		catalog.AddTable(natsengine.Table{ID: natsengine.TableID(t.ID), Schema: t.Schema, Name: t.Name})
		for _, view := range t.DependentViews {
			catalog.AddDependency(natsengine.TableID(t.ID), natsengine.TableID(view))
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	formats := format.NewRegistry()
	sched := schedule.NewPool(2 * time.Second)
	defer sched.StopAll()

	engines := make([]*natsengine.Engine, 0, len(cfg.NatsEngine.Tables))
	for _, t := range cfg.NatsEngine.Tables {
		nc, err := natsengine.LoadConfig(t.Settings, natsengine.GlobalCredentials{})
		if err != nil {
			return fmt.Errorf("load config for table %s: %w", t.ID, err)
		}

		eng, err := natsengine.New(nc, natsengine.TableID(t.ID), catalog, views, formats, sched, logger)
		if err != nil {
			return fmt.Errorf("build engine for table %s: %w", t.ID, err)
		}
		if err := eng.Start(ctx); err != nil {
			return fmt.Errorf("start engine for table %s: %w", t.ID, err)
		}
		engines = append(engines, eng)
		log.Printf("natsengine: serving table %s on subjects %v", t.ID, nc.Subjects)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("natsengine: received termination signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, eng := range engines {
		if err := eng.Shutdown(shutdownCtx); err != nil {
			log.Printf("natsengine: shutdown error: %v", err)
		}
	}

	cancel()
	wg.Wait()
	return nil
}
