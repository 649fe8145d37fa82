package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tartil/recite"
)

// timePosObserver is the observe_property id used for time-pos.
const timePosObserver = 1

// mpvRequest is one JSON IPC command.
type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// mpvMessage is either a reply (RequestID set) or an event.
type mpvMessage struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`

	Event  string `json:"event"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
	// FileError is set on end-file with reason "error".
	FileError string `json:"file_error"`
}

// MPVPlayer drives an mpv process through its JSON IPC socket.
type MPVPlayer struct {
	cmd    *exec.Cmd
	conn   net.Conn
	socket string

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan mpvMessage
	loading chan error
	state   PlayerState

	pos      atomic.Int64
	progress chan time.Duration
	ended    chan struct{}
	done     chan struct{}

	closeOnce sync.Once
}

// NewMPVPlayer starts mpv idle and connects to its IPC socket.
func NewMPVPlayer(cfg recite.MPVConfig) (*MPVPlayer, error) {
	bin, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", recite.ErrPlayerUnavailable, cfg.Binary, err)
	}

	socket := cfg.Socket
	if socket == "" {
		socket = filepath.Join(os.TempDir(), fmt.Sprintf("tartil-mpv-%d.sock", os.Getpid()))
	}
	_ = os.Remove(socket)

	args := []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--pause=yes",
		"--input-ipc-server=" + socket,
	}
	args = append(args, cfg.ExtraArgs...)

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting mpv: %v", recite.ErrPlayerUnavailable, err)
	}

	conn, err := dialSocket(socket, cfg.StartTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: %v", recite.ErrPlayerUnavailable, err)
	}
	log.Debug("mpv started", "pid", cmd.Process.Pid, "socket", socket)

	p := newMPV(conn)
	p.cmd = cmd
	p.socket = socket
	if err := p.observe(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func dialSocket(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("mpv socket %s not ready after %v: %w", path, timeout, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// newMPV wraps an established IPC connection.
func newMPV(conn net.Conn) *MPVPlayer {
	p := &MPVPlayer{
		conn:     conn,
		pending:  make(map[int64]chan mpvMessage),
		state:    StateStopped,
		progress: make(chan time.Duration, 1),
		ended:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *MPVPlayer) observe() error {
	_, err := p.command(context.Background(), "observe_property", timePosObserver, "time-pos")
	return err
}

// Load implements recite.Player. It returns once mpv has opened the file
// or reported that it cannot.
func (p *MPVPlayer) Load(ctx context.Context, url string) error {
	result := make(chan error, 1)

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return recite.ErrPlayerClosed
	}
	p.loading = result
	p.mu.Unlock()

	p.pos.Store(0)
	if _, err := p.command(ctx, "set_property", "pause", true); err != nil {
		return err
	}
	if _, err := p.command(ctx, "loadfile", url, "replace"); err != nil {
		return &recite.PlaybackSourceError{URL: url, Err: err}
	}

	select {
	case err := <-result:
		if err != nil {
			return &recite.PlaybackSourceError{URL: url, Err: err}
		}
		p.setState(StatePaused)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return recite.ErrPlayerClosed
	}
}

// Play implements recite.Player.
func (p *MPVPlayer) Play() error {
	if err := p.requireLoaded(); err != nil {
		return err
	}
	if _, err := p.command(context.Background(), "set_property", "pause", false); err != nil {
		return err
	}
	p.setState(StatePlaying)
	return nil
}

// Pause implements recite.Player.
func (p *MPVPlayer) Pause() error {
	if err := p.requireLoaded(); err != nil {
		return err
	}
	if _, err := p.command(context.Background(), "set_property", "pause", true); err != nil {
		return err
	}
	p.setState(StatePaused)
	return nil
}

// Position implements recite.Player.
func (p *MPVPlayer) Position() time.Duration {
	return time.Duration(p.pos.Load())
}

// Progress implements recite.ProgressNotifier with mpv's time-pos updates.
func (p *MPVPlayer) Progress() <-chan time.Duration {
	return p.progress
}

// Seek implements recite.Player.
func (p *MPVPlayer) Seek(pos time.Duration) error {
	if err := p.requireLoaded(); err != nil {
		return err
	}
	if pos < 0 {
		return recite.ErrSeekOutOfRange
	}
	secs := strconv.FormatFloat(pos.Seconds(), 'f', 3, 64)
	if _, err := p.command(context.Background(), "seek", secs, "absolute+exact"); err != nil {
		return err
	}
	p.pos.Store(int64(pos))
	return nil
}

// SetRate implements recite.Player.
func (p *MPVPlayer) SetRate(rate float64) error {
	if rate < recite.MinRate || rate > recite.MaxRate {
		return recite.ErrRateUnsupported
	}
	_, err := p.command(context.Background(), "set_property", "speed", rate)
	return err
}

// Ended implements recite.Player.
func (p *MPVPlayer) Ended() <-chan struct{} {
	return p.ended
}

// Close asks mpv to quit, then kills it if it lingers.
func (p *MPVPlayer) Close() error {
	p.closeOnce.Do(func() {
		p.setState(StateClosed)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = p.command(ctx, "quit")
		cancel()
		_ = p.conn.Close()
		<-p.done

		if p.cmd != nil && p.cmd.Process != nil {
			waited := make(chan struct{})
			go func() {
				_ = p.cmd.Wait()
				close(waited)
			}()
			select {
			case <-waited:
			case <-time.After(2 * time.Second):
				_ = p.cmd.Process.Kill()
				<-waited
			}
		}
		if p.socket != "" {
			_ = os.Remove(p.socket)
		}
		log.Debug("mpv closed")
	})
	return nil
}

// State returns the transport state.
func (p *MPVPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *MPVPlayer) setState(s PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateClosed {
		p.state = s
	}
}

func (p *MPVPlayer) requireLoaded() error {
	switch p.State() {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	}
	return nil
}

// command sends one IPC command and waits for its reply.
func (p *MPVPlayer) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	id := p.nextID.Add(1)
	reply := make(chan mpvMessage, 1)

	p.mu.Lock()
	p.pending[id] = reply
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	line, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	p.writeMu.Lock()
	_, err = p.conn.Write(line)
	p.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mpv %v: %w", args[0], err)
	}

	select {
	case msg := <-reply:
		if msg.Error != "" && msg.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, recite.ErrPlayerClosed
	}
}

func (p *MPVPlayer) readLoop() {
	defer close(p.done)

	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Debug("mpv: unreadable message", "error", err)
			continue
		}
		if msg.Event == "" {
			p.mu.Lock()
			reply, ok := p.pending[msg.RequestID]
			p.mu.Unlock()
			if ok {
				reply <- msg
			}
			continue
		}
		p.handleEvent(msg)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("mpv: connection lost", "error", err)
	}
}

func (p *MPVPlayer) handleEvent(msg mpvMessage) {
	switch msg.Event {
	case "property-change":
		// time-pos is null while no file is open
		if msg.ID != timePosObserver || len(msg.Data) == 0 || string(msg.Data) == "null" {
			return
		}
		var secs float64
		if err := json.Unmarshal(msg.Data, &secs); err != nil {
			return
		}
		pos := recite.FromSeconds(secs)
		p.pos.Store(int64(pos))
		// Keep only the freshest position.
		select {
		case <-p.progress:
		default:
		}
		select {
		case p.progress <- pos:
		default:
		}

	case "file-loaded":
		p.finishLoad(nil)

	case "end-file":
		switch msg.Reason {
		case "eof":
			p.setState(StatePaused)
			select {
			case p.ended <- struct{}{}:
			default:
			}
		case "error":
			reason := msg.FileError
			if reason == "" {
				reason = "unknown error"
			}
			p.finishLoad(errors.New(reason))
		}
	}
}

func (p *MPVPlayer) finishLoad(err error) {
	p.mu.Lock()
	ch := p.loading
	p.loading = nil
	p.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}
