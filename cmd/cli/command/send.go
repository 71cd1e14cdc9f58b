package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gamebridge/internal/channel"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to the attached peer",
	Long: `Send a message to the peer of the current session.

Fields are given as key=value; values that parse as JSON (numbers, booleans,
objects) keep their type, anything else is sent as a string.

  gamebridgectl send --command MOVE --field x=3 --field run=true --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		fields, _ := cmd.Flags().GetStringArray("field")
		async, _ := cmd.Flags().GetBool("async")

		msg, err := buildMessage(command, fields, time.Now())
		if err != nil {
			return err
		}

		c, err := GetClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		resp, err := c.Send(ctx, msg, async)
		if err != nil {
			return fmt.Errorf("✗ send failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s (session %s)\n", resp.Command, resp.Status, resp.SessionID)
		return nil
	},
}

func buildMessage(command string, fields []string, now time.Time) (channel.Message, error) {
	if command == "" {
		return nil, fmt.Errorf("--command is required")
	}
	msg := channel.NewMessage(command, now)
	for _, f := range fields {
		key, raw, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q, want key=value", f)
		}
		if key == "command" {
			return nil, fmt.Errorf("use --command to set the command")
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		msg[key] = value
	}
	return msg, nil
}

func init() {
	sendCmd.Flags().String("command", "", "message command (required)")
	sendCmd.Flags().StringArray("field", nil, "extra field as key=value (repeatable)")
	sendCmd.Flags().Bool("async", false, "queue the message instead of waiting for the write")
	rootCmd.AddCommand(sendCmd)
}
