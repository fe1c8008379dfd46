package console

import (
	"fmt"
	"strconv"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	tableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

func newTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		}).
		Render()
}

func RoomsView(roomIDs []string) string {
	if len(roomIDs) == 0 {
		return MutedStyle.Render("No active rooms")
	}
	rows := make([][]string, 0, len(roomIDs))
	for i, id := range roomIDs {
		rows = append(rows, []string{strconv.Itoa(i + 1), id})
	}
	return newTable([]string{"#", "Room"}, rows)
}

// MembersView lists room members in join order.
func MembersView(room model.Room) string {
	rows := make([][]string, 0, len(room.Members))
	for i, m := range room.Members {
		rows = append(rows, []string{strconv.Itoa(i + 1), m.Name, m.ID})
	}
	return fmt.Sprintf("Room %s\n%s", NameStyle.Render(room.ID),
		newTable([]string{"#", "Name", "Participant"}, rows))
}

// LinksView joins link snapshots with known participant indicators.
func LinksView(links []session.LinkInfo, participants []Participant) string {
	if len(links) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}
	byID := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	rows := make([][]string, 0, len(links))
	for _, li := range links {
		p, ok := byID[li.RemoteID]
		if !ok {
			p = Participant{Audio: true, Video: true}
		}
		name := li.Name
		if name == "" {
			name = shortID(li.RemoteID)
		}
		rows = append(rows, []string{
			name,
			li.Role.String(),
			li.State.String(),
			string(li.Connectivity),
			indicator(p.Audio) + " mic  " + indicator(p.Video) + " cam",
		})
	}
	return newTable([]string{"Participant", "Role", "State", "ICE", "Media"}, rows)
}

// RoomView is a banner with the room code to share.
func RoomView(roomID, name string) string {
	return RoomBoxStyle.Render(fmt.Sprintf("Room:  %s\nYou:   %s\n\n%s",
		NameStyle.Render(roomID), name,
		MutedStyle.Render("a: mic  v: camera  s: screen  l: links  q: leave")))
}
