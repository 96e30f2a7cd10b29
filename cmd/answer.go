package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/phone"
)

var answerCmd = &cobra.Command{
	Use:     "answer <call-id>",
	Aliases: []string{"a"},
	Short:   "Answer a call",
	Long: `Join the call with the given id and answer the caller's offer.

Examples:
  chatterbox answer amber-heron-tuba-meadow
  chatterbox answer amber-heron-tuba-meadow --as bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := newCallContext(cmd)
		if err != nil {
			return err
		}

		callID := args[0]
		return runCall(cmd.Context(), cc, callID, "caller", func(ctx context.Context, p *phone.Phone) (*call.Call, error) {
			return p.Answer(ctx, callID)
		})
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)
	addCallFlags(answerCmd)
}
