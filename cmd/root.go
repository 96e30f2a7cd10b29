package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/chatterbox/internal/ui"
	"github.com/BioHazard786/chatterbox/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatterbox",
	Short: "Voice and video calls over WebRTC with a websocket signaling relay",
	Long: `Chatterbox runs the signaling relay that pairs callers in a room and
places or answers peer-to-peer calls from the terminal.

Media flows directly between the two peers; the relay only forwards the
offer, answer and ICE candidates.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and runs it until
// it returns or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
