package welcome

import (
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/screen"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

const (
	tickInterval = 100 * time.Millisecond
	phase1End    = 500 * time.Millisecond
	phase2End    = 1500 * time.Millisecond
	totalDur     = 4500 * time.Millisecond
)

const (
	tagline    = "A quiet check-in on how you have been feeling."
	disclaimer = "This check-in is a screening aid, not a diagnosis. " +
		"If you are in crisis, contact your local emergency number."
)

// breathFrames grow and shrink a circle, one frame per tick.
var breathFrames = []string{
	"\n\n    ·    \n\n",
	"\n   ╭─╮   \n   ╰─╯   \n\n",
	"  ╭───╮  \n  │   │  \n  ╰───╯  \n\n",
	" ╭─────╮ \n │     │ \n │     │ \n ╰─────╯ ",
	"  ╭───╮  \n  │   │  \n  ╰───╯  \n\n",
	"\n   ╭─╮   \n   ╰─╯   \n\n",
}

type tickMsg time.Time

// WelcomeScreen shows a short splash before transitioning to the home screen.
type WelcomeScreen struct {
	homeFactory  func() screen.Screen
	elapsed      time.Duration
	tickCount    int
	transitioned bool
}

var _ screen.Screen = (*WelcomeScreen)(nil)

// New creates a WelcomeScreen that will transition to the screen produced by homeFactory.
func New(homeFactory func() screen.Screen) *WelcomeScreen {
	return &WelcomeScreen{
		homeFactory: homeFactory,
	}
}

func (w *WelcomeScreen) Title() string {
	return ""
}

func (w *WelcomeScreen) Init() tea.Cmd {
	return tick()
}

func (w *WelcomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		if w.transitioned {
			return w, nil
		}
		if w.elapsed < totalDur {
			w.elapsed += tickInterval
		}
		w.tickCount++
		return w, tick()

	case tea.KeyPressMsg:
		// Any key skips the rest of the animation.
		return w, w.transition()
	}

	return w, nil
}

func (w *WelcomeScreen) transition() tea.Cmd {
	if w.transitioned {
		return nil
	}
	w.transitioned = true
	homeScreen := w.homeFactory()
	return func() tea.Msg {
		return router.ReplaceScreenMsg{Screen: homeScreen}
	}
}

func (w *WelcomeScreen) View(width, height int) string {
	var sections []string

	// Phase 1+: breathing circle
	frame := 0
	if w.elapsed >= phase1End {
		frame = (w.tickCount / 3) % len(breathFrames)
	}
	sections = append(sections, lipgloss.NewStyle().Foreground(theme.Secondary).Render(breathFrames[frame]))

	// Phase 2+: banner + tagline
	if w.elapsed >= phase2End {
		sections = append(sections, RenderBanner(width), "")
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.Text).
			Bold(true).
			Render(tagline))
		sections = append(sections, "", lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Width(min(width-8, 60)).
			Align(lipgloss.Center).
			Render(disclaimer))
	}

	// "press any key" hint
	if w.elapsed >= totalDur {
		sections = append(sections, "", lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Italic(true).
			Render("press any key to continue"))
	}

	content := strings.Join(sections, "\n")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
