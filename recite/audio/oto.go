package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/tartil/recite"
)

// go-mp3 always decodes to 16-bit little-endian stereo.
const (
	otoChannels    = 2
	otoBytesPerPCM = 2
	otoFrameSize   = otoChannels * otoBytesPerPCM
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: otoChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("%w: %v", recite.ErrPlayerUnavailable, err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoRate {
		return nil, fmt.Errorf("sample rate %d Hz does not match the audio device at %d Hz", sampleRate, otoRate)
	}
	return otoCtx, nil
}

// pcmStream counts the bytes oto has pulled from the decoder.
type pcmStream struct {
	dec  *mp3.Decoder
	read atomic.Int64
}

func (s *pcmStream) Read(b []byte) (int, error) {
	n, err := s.dec.Read(b)
	s.read.Add(int64(n))
	return n, err
}

func (s *pcmStream) Seek(offset int64, whence int) (int64, error) {
	n, err := s.dec.Seek(offset, whence)
	if err == nil {
		s.read.Store(n)
	}
	return n, err
}

// pcmPosition converts a count of PCM bytes heard into media time.
func pcmPosition(heard int64, sampleRate int) time.Duration {
	if heard <= 0 || sampleRate <= 0 {
		return 0
	}
	frames := heard / otoFrameSize
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// pcmOffset converts media time into a frame-aligned byte offset.
func pcmOffset(pos time.Duration, sampleRate int) int64 {
	frames := int64(pos) * int64(sampleRate) / int64(time.Second)
	return frames * otoFrameSize
}

// OtoPlayer decodes MP3 in-process and plays it through oto. The whole file
// is fetched before playback starts. Only normal speed is supported.
type OtoPlayer struct {
	fetcher Fetcher

	mu         sync.Mutex
	state      PlayerState
	player     *oto.Player
	stream     *pcmStream
	data       []byte // keeps the encoded file alive while playing
	sampleRate int
	length     int64
	watchStop  chan struct{}

	ended chan struct{}
}

// NewOtoPlayer creates a player that fetches audio with fetcher.
func NewOtoPlayer(fetcher Fetcher) *OtoPlayer {
	if fetcher == nil {
		fetcher = &HTTPFetcher{}
	}
	return &OtoPlayer{
		fetcher: fetcher,
		state:   StateStopped,
		ended:   make(chan struct{}, 1),
	}
}

// Load implements recite.Player.
func (p *OtoPlayer) Load(ctx context.Context, url string) error {
	if p.State() == StateClosed {
		return recite.ErrPlayerClosed
	}

	data, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return &recite.PlaybackSourceError{URL: url, Err: err}
	}
	octx, err := otoContext(dec.SampleRate())
	if err != nil {
		return &recite.PlaybackSourceError{URL: url, Err: err}
	}

	stream := &pcmStream{dec: dec}
	player := octx.NewPlayer(stream)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		_ = player.Close()
		return recite.ErrPlayerClosed
	}
	p.releaseLocked()
	p.player = player
	p.stream = stream
	p.data = data
	p.sampleRate = dec.SampleRate()
	p.length = dec.Length()
	p.state = StatePaused

	log.Debug("oto loaded", "url", url, "rate", p.sampleRate, "duration", pcmPosition(p.length, p.sampleRate))
	return nil
}

// Play implements recite.Player.
func (p *OtoPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	case StatePlaying:
		return nil
	}
	p.player.Play()
	p.state = StatePlaying

	p.watchStop = make(chan struct{})
	go p.watchEnd(p.player, p.stream, p.length, p.watchStop)
	return nil
}

// Pause implements recite.Player.
func (p *OtoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	case StatePaused:
		return nil
	}
	p.player.Pause()
	p.stopWatchLocked()
	p.state = StatePaused
	return nil
}

// Position implements recite.Player. It is the decoded position minus what
// is still queued in oto's buffer.
func (p *OtoPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return 0
	}
	heard := p.stream.read.Load() - int64(p.player.BufferedSize())
	return pcmPosition(heard, p.sampleRate)
}

// Seek implements recite.Player.
func (p *OtoPlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	}
	off := pcmOffset(pos, p.sampleRate)
	if off < 0 || off > p.length {
		return recite.ErrSeekOutOfRange
	}
	if _, err := p.player.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("oto seek: %w", err)
	}
	return nil
}

// SetRate implements recite.Player. oto plays PCM at the device rate, so
// only 1.0 is accepted.
func (p *OtoPlayer) SetRate(rate float64) error {
	if rate != recite.DefaultRate {
		return recite.ErrRateUnsupported
	}
	return nil
}

// Ended implements recite.Player.
func (p *OtoPlayer) Ended() <-chan struct{} {
	return p.ended
}

// Close implements recite.Player.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.state = StateClosed
	return nil
}

// State returns the transport state.
func (p *OtoPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *OtoPlayer) watchEnd(player *oto.Player, stream *pcmStream, length int64, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if player.IsPlaying() || stream.read.Load() < length {
				continue
			}
			p.mu.Lock()
			current := p.player == player && p.state == StatePlaying
			if current {
				p.state = StatePaused
				p.watchStop = nil
			}
			p.mu.Unlock()
			if current {
				select {
				case p.ended <- struct{}{}:
				default:
				}
			}
			return
		}
	}
}

func (p *OtoPlayer) stopWatchLocked() {
	if p.watchStop != nil {
		close(p.watchStop)
		p.watchStop = nil
	}
}

func (p *OtoPlayer) releaseLocked() {
	p.stopWatchLocked()
	if p.player != nil {
		p.player.Pause()
		if err := p.player.Close(); err != nil {
			log.Debug("oto close", "error", err)
		}
		p.player = nil
	}
	p.stream = nil
	p.data = nil
	p.state = StateStopped
}
