package peer

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// TrackStats summarises the RTP received on one remote track.
type TrackStats struct {
	ID      string
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
	Lost    uint64
	First   time.Time
	Last    time.Time

	started bool
	lastSeq uint16
}

// Bitrate is the average payload bitrate in bits per second.
func (t TrackStats) Bitrate() float64 {
	d := t.Last.Sub(t.First).Seconds()
	if d <= 0 {
		return 0
	}
	return float64(t.Bytes*8) / d
}

func (t *TrackStats) observe(pkt *rtp.Packet, now time.Time) {
	t.Packets++
	t.Bytes += uint64(len(pkt.Payload))
	t.Last = now

	if !t.started {
		t.started = true
		t.First = now
		t.lastSeq = pkt.SequenceNumber
		return
	}

	// Forward gaps within half the sequence space count as loss; anything
	// else is a reordered or duplicate packet.
	gap := pkt.SequenceNumber - t.lastSeq
	if gap == 0 || gap >= 1<<15 {
		return
	}
	t.Lost += uint64(gap - 1)
	t.lastSeq = pkt.SequenceNumber
}

type statsTable struct {
	mu     sync.Mutex
	tracks map[string]*TrackStats
	order  []string
}

func newStatsTable() *statsTable {
	return &statsTable{tracks: make(map[string]*TrackStats)}
}

func (s *statsTable) track(id, kind, codec string) *TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		return t
	}
	t := &TrackStats{ID: id, Kind: kind, Codec: codec}
	s.tracks[id] = t
	s.order = append(s.order, id)
	return t
}

func (s *statsTable) observe(t *TrackStats, pkt *rtp.Packet) {
	s.mu.Lock()
	t.observe(pkt, time.Now())
	s.mu.Unlock()
}

func (s *statsTable) snapshot() []TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackStats, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tracks[id])
	}
	return out
}
