package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/config"
	"github.com/BioHazard786/chatterbox/internal/logging"
	"github.com/BioHazard786/chatterbox/internal/peer"
	"github.com/BioHazard786/chatterbox/internal/phone"
	"github.com/BioHazard786/chatterbox/internal/ui"
	"github.com/BioHazard786/chatterbox/internal/utils"
)

// Flag names shared by call and answer.
const (
	flagAs      = "as"
	flagVideo   = "video"
	flagTimeout = "timeout"
)

func addCallFlags(cmd *cobra.Command) {
	config.AddPeerFlags(cmd.Flags())
	cmd.Flags().String(flagAs, defaultUserID(), "Name announced to the other participant")
	cmd.Flags().Bool(flagVideo, false, "Video call (receive only)")
	cmd.Flags().Duration(flagTimeout, phone.DefaultRingTimeout, "How long to wait for the other participant")
}

// defaultUserID names the local participant after the login user.
func defaultUserID() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "guest"
}

// CallContext is what a call or answer command needs to run.
type CallContext struct {
	Config  *config.Config
	UserID  string
	Type    call.Type
	Timeout time.Duration
}

func newCallContext(cmd *cobra.Command) (*CallContext, error) {
	logging.Init(slog.LevelError)

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	userID, _ := cmd.Flags().GetString(flagAs)
	if userID == "" {
		return nil, fmt.Errorf("--%s must not be empty", flagAs)
	}
	video, _ := cmd.Flags().GetBool(flagVideo)
	timeout, _ := cmd.Flags().GetDuration(flagTimeout)

	typ := call.Audio
	if video {
		typ = call.Video
	}

	return &CallContext{
		Config:  cfg,
		UserID:  userID,
		Type:    typ,
		Timeout: timeout,
	}, nil
}

// viewObserver shows setup on a spinner, then feeds call progress into
// the live view and keeps the last statistics for the summary.
type viewObserver struct {
	spin  *ui.SimpleSpinner
	view  *ui.CallView
	ready bool
	last  []peer.TrackStats
}

func (o *viewObserver) Progress(msg string) {
	if !o.ready {
		o.spin.UpdateMessage(msg)
		return
	}
	o.view.SetStatus(msg)
}

func (o *viewObserver) Ready() {
	if o.ready {
		return
	}
	o.ready = true
	o.spin.Success("Connected to relay")
	o.view.Start()
}

func (o *viewObserver) Connected(at time.Time) { o.view.SetConnected(at) }

func (o *viewObserver) Stats(stats []peer.TrackStats) {
	o.last = stats
	o.view.SetStats(trackRows(stats))
}

func trackRows(stats []peer.TrackStats) []ui.TrackRow {
	rows := make([]ui.TrackRow, len(stats))
	for i, s := range stats {
		rows[i] = ui.TrackRow{
			Kind:    s.Kind,
			Codec:   s.Codec,
			Packets: s.Packets,
			Bytes:   s.Bytes,
			Lost:    s.Lost,
			Bitrate: s.Bitrate(),
		}
	}
	return rows
}

// runCall starts the live view, runs fn with a phone wired to it and
// prints the summary once the call is over.
func runCall(ctx context.Context, cc *CallContext, callID, peerName string, fn func(context.Context, *phone.Phone) (*call.Call, error)) error {
	view := ui.NewCallView(callID, peerName, cc.Type == call.Video)
	spin := ui.NewConnectionSpinner("Connecting to relay")
	obs := &viewObserver{spin: spin, view: view}

	p := phone.New(phone.Options{
		Config:      cc.Config,
		UserID:      cc.UserID,
		Type:        cc.Type,
		RingTimeout: cc.Timeout,
		Observer:    obs,
	})

	done := make(chan struct{})
	defer close(done)

	spin.Start()
	go func() {
		for {
			select {
			case a := <-view.Actions():
				switch a {
				case ui.ActionHangup:
					p.Hangup()
				case ui.ActionToggleMute:
					p.ToggleMute()
				}
			case <-done:
				return
			}
		}
	}()

	c, err := fn(ctx, p)
	spin.Stop()
	view.Stop()

	if c != nil {
		fmt.Println()
		ui.RenderCallSummary(summary(c, cc.UserID, obs.last))
	}
	switch {
	case errors.Is(err, call.ErrTimeout):
		ui.PrintWarning("Nobody answered")
		return nil
	case errors.Is(err, call.ErrPeerLeft):
		ui.PrintWarning(peerName + " hung up before the call connected")
		return nil
	}
	return err
}

func summary(c *call.Call, self string, stats []peer.TrackStats) ui.CallSummary {
	other := c.To
	if c.To == self {
		other = c.From
	}
	return ui.CallSummary{
		CallID:   c.ID,
		Peer:     other,
		Status:   string(c.Status()),
		Reason:   string(c.EndReason()),
		Duration: utils.FormatCallDuration(c.Duration()),
		Tracks:   trackRows(stats),
	}
}
