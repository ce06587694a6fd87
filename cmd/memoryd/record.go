package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"memoryd/internal/recorder"
	"memoryd/internal/types"
)

var (
	recTenant      string
	recSession     string
	recChannel     string
	recActorType   string
	recActorID     string
	recKind        string
	recSensitivity string
	recText        string
	recContent     string
	recTags        []string
)

// recordCmd records a single event from the command line
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one event",
	Long: `Records a single event without starting the serve loop.

For message events --text is enough; other kinds take --content with the
kind-specific JSON payload.

Example:
  memoryd record --tenant acme --session sess_1 --text "prefer rebase over merge"`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recTenant, "tenant", "", "Tenant id (required)")
	recordCmd.Flags().StringVar(&recSession, "session", "", "Session id (required)")
	recordCmd.Flags().StringVar(&recChannel, "channel", "private", "Channel: private, team, agent, public")
	recordCmd.Flags().StringVar(&recActorType, "actor-type", "human", "Actor type: human, agent, tool, system")
	recordCmd.Flags().StringVar(&recActorID, "actor", "cli", "Actor id")
	recordCmd.Flags().StringVar(&recKind, "kind", "message", "Event kind")
	recordCmd.Flags().StringVar(&recSensitivity, "sensitivity", "none", "Sensitivity: none, low, high")
	recordCmd.Flags().StringVar(&recText, "text", "", "Message text (shorthand for --content '{\"text\": ...}')")
	recordCmd.Flags().StringVar(&recContent, "content", "", "Kind-specific content JSON")
	recordCmd.Flags().StringSliceVar(&recTags, "tag", nil, "Tags (repeatable)")
	_ = recordCmd.MarkFlagRequired("tenant")
	_ = recordCmd.MarkFlagRequired("session")
}

func runRecord(cmd *cobra.Command, args []string) error {
	content := recContent
	if content == "" {
		if recText == "" {
			return fmt.Errorf("either --text or --content is required")
		}
		raw, err := json.Marshal(map[string]string{"text": recText})
		if err != nil {
			return err
		}
		content = string(raw)
	}
	if !json.Valid([]byte(content)) {
		return fmt.Errorf("--content is not valid JSON")
	}

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	rec := recorder.New(st.store, st.policy, cfg.Ingestion)
	result, err := rec.Record(context.Background(), recorder.Input{
		Tenant:      recTenant,
		Session:     recSession,
		Channel:     types.Channel(recChannel),
		Actor:       types.Actor{Type: types.ActorType(recActorType), ID: recActorID},
		Kind:        types.EventKind(recKind),
		Sensitivity: types.Sensitivity(recSensitivity),
		Content:     json.RawMessage(content),
		Tags:        recTags,
	})
	if err != nil {
		return err
	}

	fmt.Printf("recorded %s", result.EventID)
	if len(result.ChunkIDs) > 0 {
		fmt.Printf(" (chunks: %s)", strings.Join(result.ChunkIDs, ", "))
	}
	if result.Redacted {
		fmt.Print(" [redacted]")
	}
	fmt.Println()
	return nil
}
