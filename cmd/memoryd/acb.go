package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memoryd/internal/tools"
)

var (
	acbTenant   string
	acbSession  string
	acbAgent    string
	acbChannel  string
	acbIntent   string
	acbQuery    string
	acbTokens   int
	acbCapsules bool
)

// acbCmd assembles an Active Context Bundle from the command line
var acbCmd = &cobra.Command{
	Use:   "acb",
	Short: "Assemble an Active Context Bundle",
	Long: `Builds an ACB for a session and prints it as JSON.

Example:
  memoryd acb --tenant acme --session sess_1 --intent debug --query "timeout on checkout"`,
	RunE: runACB,
}

func init() {
	acbCmd.Flags().StringVar(&acbTenant, "tenant", "", "Tenant id (required)")
	acbCmd.Flags().StringVar(&acbSession, "session", "", "Session id (required)")
	acbCmd.Flags().StringVar(&acbAgent, "agent", "", "Requesting agent id (enables capsules)")
	acbCmd.Flags().StringVar(&acbChannel, "channel", "agent", "Channel the bundle is assembled for")
	acbCmd.Flags().StringVar(&acbIntent, "intent", "", "Declared intent; dominates mode detection")
	acbCmd.Flags().StringVar(&acbQuery, "query", "", "Query text driving the evidence section")
	acbCmd.Flags().IntVar(&acbTokens, "max-tokens", 0, "Token budget (0 = config default)")
	acbCmd.Flags().BoolVar(&acbCapsules, "capsules", false, "Include capsules addressed to --agent")
	_ = acbCmd.MarkFlagRequired("tenant")
	_ = acbCmd.MarkFlagRequired("session")
}

func runACB(cmd *cobra.Command, args []string) error {
	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	raw, err := json.Marshal(map[string]any{
		"tenant_id":        acbTenant,
		"session_id":       acbSession,
		"agent_id":         acbAgent,
		"channel":          acbChannel,
		"intent":           acbIntent,
		"query_text":       acbQuery,
		"max_tokens":       acbTokens,
		"include_capsules": acbCapsules,
	})
	if err != nil {
		return err
	}

	resp := st.registry.Dispatch(cmd.Context(), tools.Request{Tool: "build_acb", Args: raw})
	if !resp.OK {
		return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(json.RawMessage(resp.Result))
}
