package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-linkcup/internal/httpc"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running server's devices",
	RunE:  runStatus,
}

var audienceCmd = &cobra.Command{
	Use:       "audience <on|off>",
	Short:     "Set the audience flag on a running server",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runAudience,
}

var climaxCmd = &cobra.Command{
	Use:   "climax <device>",
	Short: "End a device's session",
	Args:  cobra.ExactArgs(1),
	RunE:  runClimax,
}

var positionCmd = &cobra.Command{
	Use:   "position <device> <n>",
	Short: "Override a device's position (0 clears the override)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPosition,
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, audienceCmd, climaxCmd, positionCmd} {
		c.Flags().StringVar(&serverURL, "server", defaultServerURL(), "linkcup server URL (env LINKCUP_SERVER)")
		rootCmd.AddCommand(c)
	}
}

func defaultServerURL() string {
	if v := os.Getenv("LINKCUP_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := httpc.New(serverURL, 5*time.Second)
	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}
	devices, err := c.Devices(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d device(s), audience %v, %d samples, %d keys accepted, %d dropped\n",
		stats.DeviceCount, stats.Audience, stats.SamplesReceived, stats.KeysAccepted, stats.KeysDropped)
	if len(devices) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tLAST SEEN\tACTIVE\tTHRUSTS\tLEVEL\tBREATH")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%d\t%dms\n",
			d.ID,
			d.LastSeen.Local().Format("15:04:05"),
			d.State.Active && !d.State.Ended,
			d.State.ThrustCount,
			d.State.ExcitementLevel,
			d.Breath.PeriodMs,
		)
	}
	return w.Flush()
}

func runAudience(cmd *cobra.Command, args []string) error {
	var present bool
	switch args[0] {
	case "on":
		present = true
	case "off":
	default:
		return fmt.Errorf("audience must be on or off, got %q", args[0])
	}
	if err := httpc.New(serverURL, 5*time.Second).SetAudience(cmd.Context(), present); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "audience %s\n", args[0])
	return nil
}

func runClimax(cmd *cobra.Command, args []string) error {
	ended, err := httpc.New(serverURL, 5*time.Second).TriggerClimax(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ended {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no running session\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s session ended\n", args[0])
	return nil
}

func runPosition(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return fmt.Errorf("position must be a non-negative integer, got %q", args[1])
	}
	if err := httpc.New(serverURL, 5*time.Second).SetPosition(cmd.Context(), args[0], n); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s position set to %d\n", args[0], n)
	return nil
}
