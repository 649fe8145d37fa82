package ui

import "testing"

func TestScrollToVerseIgnoresMissingAnchor(t *testing.T) {
	d := newScrollDirector()
	d.setAnchors([]int{0, 4, 9})

	d.ScrollToVerse(3)
	if cmd := d.start(10, 100); cmd != nil {
		t.Error("scroll started for an ayah that was never rendered")
	}

	d.ScrollToVerse(-1)
	if cmd := d.start(10, 100); cmd != nil {
		t.Error("scroll started for a negative index")
	}
}

func TestScrollToVerseSameIndexIsNoop(t *testing.T) {
	d := newScrollDirector()
	d.setAnchors([]int{0, 4, 9})

	d.ScrollToVerse(1)
	if cmd := d.start(10, 100); cmd == nil {
		t.Fatal("first scroll did not start")
	}
	d.ScrollToVerse(1)
	if cmd := d.start(10, 100); cmd != nil {
		t.Error("repeated scroll to the same ayah started again")
	}

	d.stop()
	d.ScrollToVerse(1)
	if cmd := d.start(10, 100); cmd == nil {
		t.Error("scroll after stop should start even for the same ayah")
	}
}

func TestScrollAnimationReachesTarget(t *testing.T) {
	d := newScrollDirector()
	d.setAnchors([]int{0, 30, 60})

	d.ScrollToVerse(2)
	if cmd := d.start(12, 200); cmd == nil {
		t.Fatal("scroll did not start")
	}
	want := centredOffset(60, 12, 200)

	offset, frames := 0, 0
	msg := scrollFrameMsg{id: d.id}
	for {
		y, cmd := d.step(msg, offset)
		if y < offset || y > want {
			t.Fatalf("frame %d moved from %d to %d, away from %d", frames, offset, y, want)
		}
		offset = y
		frames++
		if cmd == nil {
			break
		}
		if frames > scrollFrames {
			t.Fatalf("animation did not stop after %d frames", frames)
		}
	}
	if offset != want {
		t.Errorf("offset = %d, want %d", offset, want)
	}
}

func TestScrollStaleFramesIgnored(t *testing.T) {
	d := newScrollDirector()
	d.setAnchors([]int{0, 30, 60})

	d.ScrollToVerse(1)
	d.start(10, 100)
	stale := scrollFrameMsg{id: d.id}

	d.stop()
	y, cmd := d.step(stale, 7)
	if y != 7 || cmd != nil {
		t.Errorf("stale frame moved the viewport: y=%d cmd=%v", y, cmd != nil)
	}
}

func TestCentredOffset(t *testing.T) {
	tests := []struct {
		name                      string
		anchor, height, maxOffset int
		want                      int
	}{
		{"top of text", 2, 30, 100, 0},
		{"middle", 50, 30, 100, 40},
		{"past the end", 95, 30, 70, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := centredOffset(tt.anchor, tt.height, tt.maxOffset); got != tt.want {
				t.Errorf("centredOffset(%d, %d, %d) = %d, want %d", tt.anchor, tt.height, tt.maxOffset, got, tt.want)
			}
		})
	}
}

func TestAyahAt(t *testing.T) {
	d := newScrollDirector()
	d.setAnchors([]int{3, 8, 12})

	tests := []struct {
		line int
		want int
	}{
		{0, -1},
		{3, 0},
		{7, 0},
		{8, 1},
		{40, 2},
	}
	for _, tt := range tests {
		if got := d.ayahAt(tt.line); got != tt.want {
			t.Errorf("ayahAt(%d) = %d, want %d", tt.line, got, tt.want)
		}
	}
}
