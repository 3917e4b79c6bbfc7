package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-linkcup/internal/log"
	"github.com/teslashibe/go-linkcup/pkg/recording"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a telemetry recording through the session engine",
	Long: `Feed a recording (` + recording.Ext + `) through a fresh session engine on a
simulated clock and print the events it produces.

Examples:
  linkcup replay recordings/cup-1-<id>.jsonl.zst
  linkcup replay --realtime recordings/cup-1-<id>.jsonl.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayRealtime bool

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Also print realtime events")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := func(ev session.Event, audience bool) {
		if ev.Type() == session.EventRealtime && !replayRealtime {
			return
		}
		s := ev.State()
		fmt.Fprintf(out, "%8dms  %-12s v=%-4d thrusts=%-4d level=%d interaction=%s\n",
			s.At.UnixMilli(), ev.Type(), s.LinearValue, s.ThrustCount, s.ExcitementLevel,
			s.EffectiveInteractionTime)
	}

	res, err := recording.Replay(cmd.Context(), args[0], cfg.Engine, sink, log.Component("replay"))
	if err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}

	f := res.Final
	fmt.Fprintf(out, "\n%d entries, %d thrusts, peak level %d, interaction %s, ended %v\n",
		res.Entries, f.ThrustCount, f.ExcitementLevel, f.EffectiveInteractionTime, f.SessionEnded)
	return nil
}
