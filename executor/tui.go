package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// GenerationUpdate is sent to the dashboard after each generation.
type GenerationUpdate struct {
	Generation   int
	BestFitness  float64
	BestScore    int
	BestTicks    int
	MeanTicks    float64
	Failed       int
	Rounds       int
	Duration     time.Duration
	InferenceAvg float64
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	bestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	startTime   time.Time
	rounds      int64
	ticks       int64
	generations int
	best        GenerationUpdate
	recent      []GenerationUpdate
	updates     chan GenerationUpdate
	done        bool
}

func initialModel(updates chan GenerationUpdate) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
	}
}

type TickMsg time.Time

type doneMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GenerationUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return u
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.rounds = totalRounds.Load()
		m.ticks = totalTicks.Load()
		return m, tickCmd()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case GenerationUpdate:
		m.generations++
		if m.generations == 1 || msg.BestFitness > m.best.BestFitness {
			m.best = msg
		}
		m.recent = append([]GenerationUpdate{msg}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	ticksPerSec := 0.0
	if duration.Seconds() >= 1 {
		ticksPerSec = float64(m.ticks) / duration.Seconds()
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + value + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("raysnek evolution") + "\n\n")
	b.WriteString(row("Generations", fmt.Sprintf("%d", m.generations)))
	b.WriteString(row("Rounds", fmt.Sprintf("%d", m.rounds)))
	b.WriteString(row("Ticks", fmt.Sprintf("%d", m.ticks)))
	b.WriteString(row("Ticks/Sec", fmt.Sprintf("%.0f", ticksPerSec)))
	b.WriteString(row("Duration", duration.Round(time.Second).String()))
	if m.generations > 0 {
		b.WriteString(row("Best ever", bestStyle.Render(fmt.Sprintf("gen %d fitness %.0f score %d ticks %d",
			m.best.Generation, m.best.BestFitness, m.best.BestScore, m.best.BestTicks))))
	}

	var recent strings.Builder
	for _, u := range m.recent {
		line := fmt.Sprintf("gen %4d  best %8.0f  score %4d  mean ticks %7.1f  %s",
			u.Generation, u.BestFitness, u.BestScore, u.MeanTicks, u.Duration.Round(time.Millisecond))
		if u.Failed > 0 {
			line += warnStyle.Render(fmt.Sprintf("  failed %d", u.Failed))
		}
		recent.WriteString(line + "\n")
	}
	if recent.Len() == 0 {
		recent.WriteString("waiting for first generation...\n")
	}
	b.WriteString("\n" + boxStyle.Render(strings.TrimRight(recent.String(), "\n")) + "\n")

	if m.done {
		b.WriteString("\nDone.\n")
	} else {
		b.WriteString("\nPress q to quit.\n")
	}
	return b.String()
}
