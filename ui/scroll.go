package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/sync"
)

const (
	scrollFrameInterval = 16 * time.Millisecond
	scrollFrames        = 6
)

// scrollFrameMsg advances a scroll animation. Frames from a superseded
// animation are ignored.
type scrollFrameMsg struct {
	id uint64
}

// scrollDirector brings the current ayah into view. It maps each ayah to
// the first line it occupies in the rendered text; the anchors are rebuilt
// on every render.
//
// The sync controller calls ScrollToVerse from inside Update, so the
// director only records the request. The reader picks it up with start
// and runs the animation on the viewport it owns.
type scrollDirector struct {
	anchors []int
	last    int

	pending bool
	target  int
	id      uint64
	frames  int
}

var _ recite.Scroller = (*scrollDirector)(nil)

func newScrollDirector() *scrollDirector {
	return &scrollDirector{last: sync.None}
}

// setAnchors replaces the line anchors after a render.
func (d *scrollDirector) setAnchors(anchors []int) {
	d.anchors = anchors
}

// ScrollToVerse implements recite.Scroller. An ayah that has not been
// rendered, or the ayah scrolled to last, is ignored.
func (d *scrollDirector) ScrollToVerse(index int) {
	if index < 0 || index >= len(d.anchors) {
		return
	}
	if index == d.last {
		return
	}
	d.last = index
	d.pending = true
}

// start turns a pending request into an animation toward a target that
// centres the ayah in a viewport of the given height. It returns nil when
// nothing is pending.
func (d *scrollDirector) start(height, maxOffset int) tea.Cmd {
	if !d.pending {
		return nil
	}
	d.pending = false
	d.target = centredOffset(d.anchors[d.last], height, maxOffset)
	d.id++
	d.frames = scrollFrames
	return scrollFrame(d.id)
}

// step moves offset one frame toward the target. Stale frames leave offset
// unchanged and schedule nothing.
func (d *scrollDirector) step(msg scrollFrameMsg, offset int) (int, tea.Cmd) {
	if msg.id != d.id || d.frames <= 0 {
		return offset, nil
	}
	d.frames--
	if d.frames == 0 {
		return d.target, nil
	}
	next := offset + (d.target-offset)/2
	if next == offset {
		d.frames = 0
		return d.target, nil
	}
	return next, scrollFrame(d.id)
}

// stop invalidates pending frames and forgets the last ayah, so the next
// request scrolls even to the same ayah.
func (d *scrollDirector) stop() {
	d.id++
	d.frames = 0
	d.pending = false
	d.last = sync.None
}

// ayahAt returns the ayah whose text covers line, or sync.None.
func (d *scrollDirector) ayahAt(line int) int {
	idx := sync.None
	for i, a := range d.anchors {
		if a > line {
			break
		}
		idx = i
	}
	return idx
}

func centredOffset(anchor, height, maxOffset int) int {
	y := anchor - height/3
	if y > maxOffset {
		y = maxOffset
	}
	if y < 0 {
		y = 0
	}
	return y
}

func scrollFrame(id uint64) tea.Cmd {
	return tea.Tick(scrollFrameInterval, func(time.Time) tea.Msg {
		return scrollFrameMsg{id: id}
	})
}
