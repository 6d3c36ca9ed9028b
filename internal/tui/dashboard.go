// Package tui renders a terminal dashboard of recently seen devices.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/imoklv/imok/internal/domain"
	"github.com/imoklv/imok/internal/repository"
)

const maxRows = 50

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57")).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	neverStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type devicesMsg []domain.DeviceView

type loadErrMsg struct{ err error }

type tickMsg time.Time

// Dashboard is the bubbletea model behind `imok top`.
type Dashboard struct {
	repo         repository.DeviceRepository
	offlineAfter time.Duration
	refresh      time.Duration

	devices   []domain.DeviceView
	loadErr   error
	updatedAt time.Time
}

func NewDashboard(repo repository.DeviceRepository, offlineAfter, refresh time.Duration) Dashboard {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return Dashboard{repo: repo, offlineAfter: offlineAfter, refresh: refresh}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.load, d.tick())
}

func (d Dashboard) load() tea.Msg {
	devices, err := d.repo.ListRecent(maxRows)
	if err != nil {
		return loadErrMsg{err: err}
	}
	now := time.Now().UTC()
	views := make([]domain.DeviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, dev.View(now, d.offlineAfter))
	}
	return devicesMsg(views)
}

func (d Dashboard) tick() tea.Cmd {
	return tea.Tick(d.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return d, tea.Quit
		case "r":
			return d, d.load
		}
	case devicesMsg:
		d.devices = msg
		d.loadErr = nil
		d.updatedAt = time.Now()
	case loadErrMsg:
		d.loadErr = msg.err
	case tickMsg:
		return d, tea.Batch(d.load, d.tick())
	}
	return d, nil
}

func (d Dashboard) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("imok devices"))
	b.WriteString("\n\n")

	if d.loadErr != nil {
		b.WriteString(errStyle.Render("load failed: " + d.loadErr.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-16s %-20s %10s", "NAME", "STATUS", "LAST PING", "PINGS")))
	b.WriteString("\n")
	if len(d.devices) == 0 {
		b.WriteString(neverStyle.Render("no devices yet"))
		b.WriteString("\n")
	}
	for _, v := range d.devices {
		b.WriteString(fmt.Sprintf("%-24s %-16s %-20s %10d\n",
			truncate(v.DisplayName(), 24),
			renderStatus(v.Status),
			renderLastPing(v.LastPing),
			v.PingCount,
		))
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf("updated %s · r refresh · q quit", d.updatedAt.Format("15:04:05"))))
	b.WriteString("\n")
	return b.String()
}

func renderStatus(status string) string {
	switch status {
	case domain.StatusOnline:
		return onlineStyle.Render(fmt.Sprintf("%-16s", status))
	case domain.StatusOffline:
		return offlineStyle.Render(fmt.Sprintf("%-16s", status))
	default:
		return neverStyle.Render(fmt.Sprintf("%-16s", status))
	}
}

func renderLastPing(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
