package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxloop/voxloop/internal/domain"
)

func newInvokeCmd() *cobra.Command {
	var (
		sessionID string
		text      string
		eventType string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a single turn locally and print the platform response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			orch, cleanup, err := buildOrchestrator(ctx, &cfg, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if sessionID == "" {
				sessionID = uuid.New().String()
			}

			resp := orch.Handle(ctx, domain.Invocation{
				SessionID:  sessionID,
				Transcript: text,
				EventType:  domain.EventType(eventType),
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("encoding response: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (generated when omitted)")
	cmd.Flags().StringVar(&text, "text", "", "caller transcript for this turn")
	cmd.Flags().StringVar(&eventType, "event", "user_input", "event type (init, user_input, end)")
	return cmd
}
