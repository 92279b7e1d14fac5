package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swarm-gcs/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayOutput    string
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds recorded telemetry rows into a ground station and writes the result to the console, GreptimeDB or both.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log, closeLog := newLogger(false)
		defer closeLog.Close()
		ctx = withLogger(ctx, log)

		ws, _, cleanup, err := newWriters(cfg, replayOutput, replayPrintOnly, "")
		if err != nil {
			return err
		}
		defer cleanup()

		simulator := sim.NewSimulator(cfg, sim.NewMultiWriter(ws...), nil)
		n, err := sim.ReplayLogFile(ctx, replayInput, simulator, replaySpeed)
		log.Info("replay finished", "rows", n, "input", replayInput)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delays)")
	replayCmd.Flags().StringVar(&replayOutput, "output", "json", "Console output: json or color")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print to the console even when GREPTIMEDB_ENDPOINT is set")
	replayCmd.MarkFlagRequired("input")
}
