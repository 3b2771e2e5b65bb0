package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/readiness"
)

// Watcher is what the watch view needs from the application.
type Watcher interface {
	// Report builds the current report from a readiness snapshot.
	Report(readiness.Snapshot) Report
	// Recheck runs a readiness check. It blocks until the check is done.
	Recheck(ctx context.Context)
}

type snapshotMsg readiness.Snapshot

// Latest is a single-slot mailbox that keeps only the newest snapshot.
type Latest chan readiness.Snapshot

// NewLatest creates an empty mailbox.
func NewLatest() Latest {
	return make(Latest, 1)
}

// Put replaces any unread snapshot with s. It never blocks while a single
// goroutine is putting.
func (l Latest) Put(s readiness.Snapshot) {
	for {
		select {
		case l <- s:
			return
		default:
			select {
			case <-l:
			default:
			}
		}
	}
}

type recheckDoneMsg struct{}

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// StatusModel is a bubbletea model that follows a readiness Signal.
type StatusModel struct {
	watcher  Watcher
	updates  Latest
	snapshot readiness.Snapshot
	spinner  spinner.Model
	width    int
	busy     bool
}

// NewStatusModel creates the watch view seeded with snap. It runs a check
// on start and then follows updates.
func NewStatusModel(w Watcher, updates Latest, snap readiness.Snapshot) StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle
	return StatusModel{watcher: w, updates: updates, snapshot: snap, spinner: sp, busy: true}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, recheck(m.watcher), waitForSnapshot(m.updates))
}

func recheck(w Watcher) tea.Cmd {
	return func() tea.Msg {
		w.Recheck(context.Background())
		return recheckDoneMsg{}
	}
}

func waitForSnapshot(updates Latest) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, recheck(m.watcher)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case snapshotMsg:
		m.snapshot = readiness.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case recheckDoneMsg:
		m.busy = false

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	header := Compact(m.snapshot)
	if m.snapshot.State == readiness.Checking || m.busy {
		header = m.spinner.View() + " " + header
	}
	help := helpStyle.Render("r recheck • q quit")
	return "\n  " + header + "\n\n" + Render(m.watcher.Report(m.snapshot), m.width) + "\n  " + help + "\n"
}

// Watch runs the watch view until the user quits. Snapshots published on
// sig while it runs are forwarded to the view.
func Watch(w Watcher, sig *readiness.Signal) error {
	updates := NewLatest()
	unsubscribe := sig.Subscribe(updates.Put)
	defer unsubscribe()

	p := tea.NewProgram(NewStatusModel(w, updates, sig.Get()))

	log.Debug("Starting status watch")
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
