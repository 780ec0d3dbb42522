package display

import (
	"context"
	"sync"

	"dealboard/internal/celebration"
	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"

	"github.com/gdamore/tcell/v2"
)

const idleText = "dealboard - aguardando novos contratos"

// Terminal draws celebrations on a kiosk console.
type Terminal struct {
	screen tcell.Screen
	log    logx.Logger

	mu     sync.Mutex
	cur    *overlay.Overlay
	fading bool
	closed bool
}

// OpenTerminal takes over the controlling terminal.
func OpenTerminal(log logx.Logger) (*Terminal, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return NewTerminal(s, log), nil
}

// NewTerminal wraps an initialized screen.
func NewTerminal(s tcell.Screen, log logx.Logger) *Terminal {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Terminal{screen: s, log: log.With(logx.String("comp", "display.terminal"))}
	t.mu.Lock()
	t.drawLocked()
	t.mu.Unlock()
	return t
}

func (t *Terminal) Show(_ context.Context, o overlay.Overlay) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur, t.fading = &o, false
	t.drawLocked()
	return nil
}

func (t *Terminal) Hide(_ context.Context, id celebration.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur != nil && t.cur.ID == id {
		t.fading = true
		t.drawLocked()
	}
	return nil
}

func (t *Terminal) Remove(_ context.Context, id celebration.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur != nil && t.cur.ID == id {
		t.cur, t.fading = nil, false
		t.drawLocked()
	}
	return nil
}

// Run redraws on resize until ctx is done, then restores the terminal.
func (t *Terminal) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()
	for {
		switch t.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			t.mu.Lock()
			t.screen.Sync()
			t.drawLocked()
			t.mu.Unlock()
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				t.mu.Lock()
				t.closed = true
				t.mu.Unlock()
				t.screen.Fini()
				return nil
			}
		}
	}
}

func (t *Terminal) drawLocked() {
	if t.closed {
		return
	}
	s := t.screen
	s.Clear()
	w, h := s.Size()

	if t.cur == nil {
		putCentered(s, w, h/2, idleText, tcell.StyleDefault.Foreground(tcell.ColorGray))
		s.Show()
		return
	}

	title := tcell.StyleDefault.Foreground(tcell.ColorGold).Bold(true)
	body := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	if t.fading {
		title = title.Dim(true)
		body = body.Dim(true)
	}
	lines := t.cur.Lines()
	top := (h - len(lines)) / 2
	for i, line := range lines {
		st := body
		if i == 0 {
			st = title
		}
		putCentered(s, w, top+i, line, st)
	}
	s.Show()
}

func putCentered(s tcell.Screen, w, y int, text string, st tcell.Style) {
	r := []rune(text)
	if len(r) > w {
		r = r[:w]
	}
	x := (w - len(r)) / 2
	for i, c := range r {
		s.SetContent(x+i, y, c, nil, st)
	}
}
