package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"dsatutor/internal/models"
	"dsatutor/internal/persist"
)

var sessionsLimit int

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored chat sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, closeKV, err := openBackend(cfg)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer closeKV()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		coll := persist.NewAdapter(kv, cfg.Storage.Key).Load(ctx)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderSessions(coll.Sessions, sessionsLimit))
		return nil
	},
}

// renderSessions formats sessions by recency. limit <= 0 shows all.
func renderSessions(sessions []models.ChatSession, limit int) string {
	sorted := make([]models.ChatSession, len(sessions))
	copy(sorted, sessions)
	models.SortByRecency(sorted)

	if len(sorted) == 0 {
		return headerStyle.Render("No sessions stored yet")
	}
	total := len(sorted)
	if limit > 0 && limit < total {
		sorted = sorted[:limit]
	}

	lines := []string{headerStyle.Render(fmt.Sprintf("Sessions (%d)", total))}
	for i, s := range sorted {
		line := fmt.Sprintf("%2d. %s %s  %s  %s",
			i+1,
			titleStyle.Render(s.Title),
			idStyle.Render(s.ID),
			countStyle.Render(fmt.Sprintf("%d messages", len(s.Messages))),
			dateStyle.Render(s.UpdatedAt().Format("2006-01-02 15:04")),
		)
		if s.IsLoading {
			line += " " + loadingStyle.Render("(interrupted)")
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 0, "Show at most n sessions")
	rootCmd.AddCommand(sessionsCmd)
}
