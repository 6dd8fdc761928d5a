package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"toolgate.dev/cli/internal/analytics"
	"toolgate.dev/cli/internal/infrastructure/config"
)

// newStatsCommand creates the stats subcommand, a terminal view over the
// analytics database.
func newStatsCommand() *cobra.Command {
	var plain bool
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tool call analytics",
		Long: `Stats summarizes recorded tool calls and sessions from the local
analytics database. By default it opens an interactive view; --plain prints
a one-shot summary for scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := analytics.Open(cfg.AnalyticsPath)
			if err != nil {
				return fmt.Errorf("opening analytics store: %w", err)
			}
			defer store.Close()

			if plain {
				return printStats(store, recent)
			}
			return runStatsView(store, recent)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print a one-shot summary instead of the interactive view")
	cmd.Flags().IntVar(&recent, "recent", 20, "number of recent calls to show")
	return cmd
}

func printStats(store *analytics.Store, recent int) error {
	summary, err := store.Summarize()
	if err != nil {
		return fmt.Errorf("summarizing analytics: %w", err)
	}

	fmt.Printf("Sessions:      %d\n", summary.Sessions)
	fmt.Printf("Tool calls:    %d\n", summary.TotalCalls)
	fmt.Printf("Failed calls:  %d\n", summary.FailedCalls)
	fmt.Printf("Avg latency:   %.0fms\n", summary.AvgLatencyMs)

	calls, err := store.RecentCalls(recent)
	if err != nil {
		return fmt.Errorf("loading recent calls: %w", err)
	}
	if len(calls) > 0 {
		fmt.Println("\nRecent calls:")
		for _, call := range calls {
			fmt.Println("  " + formatCallRow(call))
		}
	}
	return nil
}

func formatCallRow(call analytics.CallRow) string {
	status := "ok"
	if !call.Success {
		status = "FAIL"
	}
	return fmt.Sprintf("%s  %-30s %6dms  %s",
		call.Timestamp.Local().Format("15:04:05"),
		call.Tool,
		call.LatencyMs,
		status,
	)
}

// runStatsView starts the interactive stats view.
func runStatsView(store *analytics.Store, recent int) error {
	model := newStatsModel(store, recent)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("stats view failed: %w", err)
	}
	return nil
}

// statsModel holds the state for the Bubble Tea stats view.
type statsModel struct {
	store   *analytics.Store
	recent  int
	summary analytics.Summary
	calls   []analytics.CallRow
	err     error
}

type statsLoadedMsg struct {
	summary analytics.Summary
	calls   []analytics.CallRow
}

type statsErrMsg struct {
	err error
}

func newStatsModel(store *analytics.Store, recent int) statsModel {
	return statsModel{store: store, recent: recent}
}

func (m statsModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.store.Summarize()
		if err != nil {
			return statsErrMsg{err: err}
		}
		calls, err := m.store.RecentCalls(m.recent)
		if err != nil {
			return statsErrMsg{err: err}
		}
		return statsLoadedMsg{summary: summary, calls: calls}
	}
}

func (m statsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		}

	case statsLoadedMsg:
		m.summary = msg.summary
		m.calls = msg.calls
		return m, nil

	case statsErrMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m statsModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'q' to quit", m.err)
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("Toolgate Stats")

	summary := fmt.Sprintf("Sessions: %d | Calls: %d | Failed: %d | Avg latency: %.0fms",
		m.summary.Sessions,
		m.summary.TotalCalls,
		m.summary.FailedCalls,
		m.summary.AvgLatencyMs,
	)

	rows := make([]string, 0, len(m.calls))
	for _, call := range m.calls {
		row := formatCallRow(call)
		if !call.Success {
			row = disabledStyle.Render(row)
		}
		rows = append(rows, row)
	}
	table := "No calls recorded yet."
	if len(rows) > 0 {
		table = lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	footer := dimStyle.Render("r: refresh | q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, summary, "", table, "", footer)
}
