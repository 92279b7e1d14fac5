package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"swarm-gcs/internal/admin"
	"swarm-gcs/internal/link"
	"swarm-gcs/internal/observability"
	"swarm-gcs/internal/scenario"
	"swarm-gcs/internal/sim"
	"swarm-gcs/internal/stream"
)

var (
	simOutput    string
	simPrintOnly bool
	simTelemetry string
	simNoAdmin   bool
	simScenario  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the ground station against a simulated swarm",
	Long:  "simulate starts the swarm feed, the operator console, the admin API and the live stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log, closeLog := newLogger(simOutput == "tui")
		defer closeLog.Close()
		ctx = withLogger(ctx, log)

		metrics, err := observability.NewCollector(nil)
		if err != nil {
			return err
		}

		ws, tui, cleanup, err := newWriters(cfg, simOutput, simPrintOnly, simTelemetry)
		if err != nil {
			return err
		}
		defer cleanup()

		hub := stream.NewHub()
		writer := sim.NewMultiWriter(ws...).
			WithSnapshotWriter(sim.SnapshotFunc(func(s sim.Snapshot) error { return hub.Broadcast(s) }))

		pub := link.NewPublisher(cfg.NATSSubject)
		if cfg.NATSURL != "" {
			if err := pub.Connect(ctx, cfg.NATSURL); err != nil {
				log.Warn("command link unavailable, commands stay local", "err", err)
			} else {
				defer pub.Close()
				writer.WithCommandWriter(pub)
			}
		}

		simulator := sim.NewSimulator(cfg, writer, metrics)
		if simScenario != "" {
			sc, err := scenario.Load(simScenario)
			if err != nil {
				return err
			}
			if err := sc.Apply(simulator); err != nil {
				return fmt.Errorf("apply scenario %s: %w", simScenario, err)
			}
			log.Info("scenario loaded", "name", sc.Name, "waypoints", len(sc.Waypoints), "teams", len(sc.Teams))
		}
		if tui != nil {
			tui.SetController(simulator)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			simulator.Run(ctx)
			return nil
		})
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		if !simNoAdmin && cfg.AdminAddr != "" {
			srv := admin.NewServer(simulator, metrics.Handler(), hub)
			if tui != nil {
				tui.SetAdminStatus(true)
			}
			g.Go(func() error { return srv.Start(ctx, cfg.AdminAddr) })
		}

		err = g.Wait()
		log.Info("ground station stopped", "session_id", cfg.SessionID)
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simOutput, "output", "tui", "Console output: json, color or tui")
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print to the console even when GREPTIMEDB_ENDPOINT is set")
	simulateCmd.Flags().StringVar(&simTelemetry, "telemetry-log", "", "Path to export telemetry, command and state rows (JSONL)")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Mission preset YAML with stations, waypoints, teams and sequences")
	simulateCmd.Flags().BoolVar(&simNoAdmin, "no-admin", false, "Do not start the admin API")
}
