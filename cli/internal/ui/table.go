package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

// LinksView renders one row per remote participant.
func LinksView(links []peer.LinkInfo) string {
	if len(links) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	rows := make([][]string, 0, len(links))
	for _, l := range links {
		role := "answer"
		if l.Initiator {
			role = "offer"
		}
		media := "-"
		if l.Stream != nil {
			media = l.Stream.Kind
		}
		rows = append(rows, []string{
			truncate(l.Name, 24),
			l.State.String(),
			role,
			media,
			strconv.Itoa(l.Attempts),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Muted)).
		Headers("Peer", "State", "Role", "Media", "Tries").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == 1:
				return tableCellStyle.Inherit(StateStyle(links[row].State))
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomInfoView is the box printed after a room is created.
func RoomInfoView(roomID, link string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(link),
		MutedStyle.Render("Join with: huddle join "+roomID),
	)
	return SuccessBoxStyle.Render(content)
}

// RosterTable renders a room's participants for plain terminal output.
func RosterTable(roomID string, users []protocol.User) string {
	t := prettytable.NewWriter()
	t.SetTitle(fmt.Sprintf("%s Room %s", IconRoom, roomID))
	t.AppendHeader(prettytable.Row{"#", "Name", "Connection"})
	for i, u := range users {
		t.AppendRow(prettytable.Row{i + 1, u.Name, u.ID})
	}
	t.AppendFooter(prettytable.Row{"", "Total", len(users)})
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	return t.Render()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
