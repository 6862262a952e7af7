package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	rankStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	statusStyles = map[models.Status]lipgloss.Style{
		models.StatusPending:    dimStyle,
		models.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusFailed:     failedStyle,
	}
)

// renderCommunication writes one communication as a single styled line, plus
// the ranked table when it carries one.
func renderCommunication(w io.Writer, c models.Communication) {
	status := statusStyles[c.Status].Render(string(c.Status))
	fmt.Fprintf(w, "%s %s [%s] %s\n",
		dimStyle.Render(c.Timestamp),
		agentStyle.Render(c.Agent),
		status,
		c.Simplified,
	)
	if c.TableData != nil {
		renderTable(w, c.TableData)
	}
}

// renderTable writes a parsed table ranked by involvement.
func renderTable(w io.Writer, t *models.ParsedTable) {
	title := fmt.Sprintf("%d congress members", t.TotalMembers)
	if t.BillID != "" {
		title += " for " + t.BillID
	}
	if t.InvestigationComplete {
		title += " (investigation complete)"
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	if t.HasDualTables {
		renderMembers(w, "Aligned", t.AlignedMembers)
		renderMembers(w, "Opposed", t.OpposedMembers)
		return
	}
	renderMembers(w, "", t.Members)
}

func renderMembers(w io.Writer, heading string, members []models.CongressMember) {
	if heading != "" {
		fmt.Fprintln(w, headerStyle.Render(heading))
	}
	ranked := session.RankedMembers(members)
	nameWidth := len("Member")
	for _, m := range ranked {
		if l := len(memberName(m)); l > nameWidth {
			nameWidth = l
		}
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%4s  %-*s  %-7s  %-6s  %s", "Rank", nameWidth, "Member", "Chamber", "Seat", "Reason")))
	for _, m := range ranked {
		seat := m.State
		if m.District != "" {
			seat += "-" + m.District
		}
		fmt.Fprintf(w, "%s  %-*s  %-7s  %-6s  %s\n",
			rankStyle.Render(fmt.Sprintf("%4d", m.Rank)),
			nameWidth, memberName(m),
			m.Chamber,
			seat,
			strings.TrimSpace(m.Reason),
		)
	}
}

func memberName(m models.CongressMember) string {
	if m.Party == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Party)
}
