package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-linkcup/pkg/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long: `List finished sessions from the session history, newest first.

Examples:
  linkcup sessions                  # Last 10 sessions
  linkcup sessions -n 50            # Last 50 sessions
  linkcup sessions --device cup-1   # Sessions for one device`,
	RunE: runSessions,
}

var (
	sessionsLast   int
	sessionsDevice string
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntVarP(&sessionsLast, "last", "n", 10, "Number of sessions to show")
	sessionsCmd.Flags().StringVar(&sessionsDevice, "device", "", "Filter by device ID")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("session history is disabled (store.path is empty)")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()

	sessions, err := st.List(cmd.Context(), sessionsDevice, sessionsLast)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDEVICE\tINTERACTION\tTHRUSTS\tPEAK\tCLIMAX")
	for _, s := range sessions {
		climax := "-"
		if s.Climaxed {
			climax = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.DeviceID,
			s.Interaction.Round(time.Second),
			s.Thrusts,
			s.PeakLevel,
			climax,
		)
	}
	return w.Flush()
}
