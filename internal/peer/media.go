package peer

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaSource acquires local media for a session. Open is called once
// while the session is built, Start once the connection is up and Close
// when the session ends.
type MediaSource interface {
	Open() ([]webrtc.TrackLocal, error)
	Start()
	Close() error
}

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrame = 20 * time.Millisecond

// SilenceSource produces an Opus audio track carrying silence. It stands
// in for a microphone on hosts without an audio capture stack.
type SilenceSource struct {
	track *webrtc.TrackLocalStaticSample

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewSilenceSource creates a silence source.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{done: make(chan struct{})}
}

func (s *SilenceSource) Open() ([]webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "chatterbox",
	)
	if err != nil {
		return nil, err
	}
	s.track = track
	return []webrtc.TrackLocal{track}, nil
}

func (s *SilenceSource) Start() {
	if s.track == nil {
		return
	}
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *SilenceSource) run() {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				return
			}
		}
	}
}

func (s *SilenceSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
