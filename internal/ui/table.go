package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/chatterbox/internal/utils"
)

// TrackRow is one line of the media statistics table.
type TrackRow struct {
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
	Lost    uint64
	Bitrate float64
}

// CallSummary is printed once a call is over.
type CallSummary struct {
	CallID   string
	Peer     string
	Status   string
	Reason   string
	Duration string
	Tracks   []TrackRow
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// TracksView renders receive statistics per remote track.
func TracksView(rows []TrackRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No media received")
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		codec := r.Codec
		if i := strings.LastIndex(codec, "/"); i >= 0 {
			codec = codec[i+1:]
		}
		data = append(data, []string{
			r.Kind,
			codec,
			strconv.FormatUint(r.Packets, 10),
			utils.FormatSize(r.Bytes),
			strconv.FormatUint(r.Lost, 10),
			utils.FormatBitrate(r.Bitrate),
		})
	}
	return newTable([]string{"Track", "Codec", "Packets", "Received", "Lost", "Bitrate"}, data).Render()
}

func CallSummaryView(s CallSummary) string {
	rows := [][]string{
		{"Call", s.CallID},
		{"With", s.Peer},
		{"Status", s.Status},
		{"Duration", s.Duration},
	}
	if s.Reason != "" {
		rows = append(rows, []string{"Reason", s.Reason})
	}

	out := newTable([]string{"Metric", "Value"}, rows).Render()
	if len(s.Tracks) > 0 {
		out += "\n" + TracksView(s.Tracks)
	}
	return out
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

// CallInfoView shows the id the callee needs to answer.
func CallInfoView(callID, callee string, video bool) string {
	icon := IconCall
	if video {
		icon = IconVideo
	}
	content := fmt.Sprintf("%s Calling %s\n\n%s Call ID:  %s\n\n%s",
		icon, BoldStyle.Render(callee),
		IconCopy, BoldStyle.Foreground(Primary).Render(callID),
		MutedStyle.Render("chatterbox answer "+callID),
	)
	return InfoBoxStyle.Render(content)
}
