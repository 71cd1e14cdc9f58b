package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("✗ status failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if resp.Session == nil {
			fmt.Fprintln(out, "✗ No session")
			return nil
		}
		s := resp.Session
		if resp.Connected {
			fmt.Fprintln(out, "✓ Connected")
		} else {
			fmt.Fprintln(out, "✗ Disconnected (last session)")
		}
		fmt.Fprintf(out, "  Session:  %s\n", s.SessionID)
		fmt.Fprintf(out, "  State:    %s\n", s.State)
		fmt.Fprintf(out, "  Uptime:   %s\n", s.Uptime)
		fmt.Fprintf(out, "  Frames:   in=%d out=%d dropped=%d\n", s.FramesIn, s.FramesOut, s.FramesDropped)
		if !s.LastReceived.IsZero() {
			fmt.Fprintf(out, "  Last in:  %s\n", s.LastReceived.Format(time.RFC3339))
		}
		if !s.LastSent.IsZero() {
			fmt.Fprintf(out, "  Last out: %s\n", s.LastSent.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
