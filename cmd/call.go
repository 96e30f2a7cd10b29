package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/phone"
	"github.com/BioHazard786/chatterbox/internal/ui"
)

const flagCallID = "id"

var callCmd = &cobra.Command{
	Use:     "call <user>",
	Aliases: []string{"c"},
	Short:   "Call another user",
	Long: `Place a call. A fresh call id is printed; the other side joins it with
"chatterbox answer <call-id>".

Examples:
  chatterbox call bob
  chatterbox call bob --video
  chatterbox call bob --server wss://relay.example.com/ws --relay --turn turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := newCallContext(cmd)
		if err != nil {
			return err
		}

		callID, _ := cmd.Flags().GetString(flagCallID)
		if callID == "" {
			if callID, err = call.NewID(); err != nil {
				return err
			}
		}

		callee := args[0]
		fmt.Println(ui.CallInfoView(callID, callee, cc.Type == call.Video))

		return runCall(cmd.Context(), cc, callID, callee, func(ctx context.Context, p *phone.Phone) (*call.Call, error) {
			return p.Call(ctx, callID, callee)
		})
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	addCallFlags(callCmd)
	callCmd.Flags().String(flagCallID, "", "Use this call id instead of a generated one")
}
