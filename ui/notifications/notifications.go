package notifications

import (
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/federatoad/db"
	"github.com/deemkeen/federatoad/domain"
	"github.com/deemkeen/federatoad/ui/common"
	"github.com/google/uuid"
)

const (
	notificationsLimit = 50
	refreshInterval    = 30 * time.Second
)

type Model struct {
	AccountId     uuid.UUID
	Notifications []domain.Notification
	Selected      int
	Offset        int
	Width         int
	Height        int
	isActive      bool
	UnreadCount   int
}

type notificationsLoadedMsg struct {
	notifications []domain.Notification
	unreadCount   int
}

type refreshTickMsg struct{}

func InitialModel(accountId uuid.UUID, width, height int) Model {
	return Model{
		AccountId:     accountId,
		Notifications: []domain.Notification{},
		Selected:      0,
		Offset:        0,
		Width:         width,
		Height:        height,
		isActive:      false,
		UnreadCount:   0,
	}
}

func (m Model) Init() tea.Cmd {
	return nil // Don't start commands - model starts inactive
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case common.ActivateViewMsg:
		// Notifications model is always active for badge updates
		// Just load data when view becomes focused
		m.isActive = true
		return m, loadNotifications(m.AccountId)

	case common.DeactivateViewMsg:
		// Don't actually deactivate - keep refreshing for badge
		// Just mark as not actively viewing
		m.isActive = false
		return m, nil

	case notificationsLoadedMsg:
		m.Notifications = msg.notifications
		m.UnreadCount = msg.unreadCount
		// Keep selection within bounds
		if m.Selected >= len(m.Notifications) {
			m.Selected = len(m.Notifications) - 1
		}
		if m.Selected < 0 {
			m.Selected = 0
		}
		// Schedule next tick to keep badge updated
		return m, tickRefresh()

	case refreshTickMsg:
		// Always refresh to keep badge count updated
		return m, loadNotifications(m.AccountId)

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Selected > 0 {
				m.Selected--
				// Scroll up if needed
				if m.Selected < m.Offset {
					m.Offset = m.Selected
				}
			}
		case "down", "j":
			if m.Selected < len(m.Notifications)-1 {
				m.Selected++
				// Scroll down if needed
				itemsPerPage := common.DefaultItemsPerPage
				if m.Selected >= m.Offset+itemsPerPage {
					m.Offset = m.Selected - itemsPerPage + 1
				}
			}
		case "enter":
			// Delete notification (mark as read by removing it)
			if m.Selected < len(m.Notifications) {
				notif := m.Notifications[m.Selected]
				return m, deleteNotification(notif.Id, m.AccountId)
			}
		case "a":
			// Delete all notifications (mark all as read by removing them)
			return m, deleteAllNotifications(m.AccountId)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	// Header
	title := fmt.Sprintf("🔔 Notifications (%d unread)", m.UnreadCount)
	s.WriteString(common.CaptionStyle.Render(title))
	s.WriteString("\n\n")

	if len(m.Notifications) == 0 {
		s.WriteString(common.ListEmptyStyle.Render("No notifications yet."))
		return s.String()
	}

	// Calculate visible range
	itemsPerPage := common.DefaultItemsPerPage
	start := m.Offset
	end := start + itemsPerPage
	if end > len(m.Notifications) {
		end = len(m.Notifications)
	}

	// Render notifications
	for i := start; i < end; i++ {
		notif := m.Notifications[i]
		selected := i == m.Selected

		// Format notification
		line1 := fmt.Sprintf("%s %s %s", notif.TypeIcon(), notif.ActorHandle(), notif.TypeLabel())
		timeAgo := formatTimeAgo(notif.CreatedAt)

		if selected {
			// Selected styling
			if !notif.Read {
				s.WriteString(common.ListSelectedPrefix +
					lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(common.COLOR_USERNAME)).Render(line1) +
					"  " + common.ListBadgeStyle.Render(timeAgo))
			} else {
				s.WriteString(common.ListSelectedPrefix +
					common.ListItemSelectedStyle.Render(line1) +
					"  " + common.ListBadgeStyle.Render(timeAgo))
			}
		} else {
			// Normal styling
			if !notif.Read {
				s.WriteString(common.ListUnselectedPrefix +
					lipgloss.NewStyle().Bold(true).Render(line1) +
					"  " + common.ListBadgeStyle.Render(timeAgo))
			} else {
				s.WriteString(common.ListUnselectedPrefix +
					common.ListItemStyle.Render(line1) +
					"  " + common.ListBadgeStyle.Render(timeAgo))
			}
		}
		s.WriteString("\n")

		// Show preview for like/reply/mention (indented)
		if notif.NotePreview != "" && notif.NotificationType != domain.NotificationFollow {
			preview := truncate(notif.NotePreview, 60)
			s.WriteString("  " + common.ListBadgeStyle.Render("\""+preview+"\""))
			s.WriteString("\n")
		}
	}

	// Pagination info
	if len(m.Notifications) > itemsPerPage {
		pageInfo := fmt.Sprintf("Showing %d-%d of %d", start+1, end, len(m.Notifications))
		s.WriteString("\n" + common.ListBadgeStyle.Render(pageInfo))
	}

	return s.String()
}

// loadNotifications loads notifications for an account
func loadNotifications(accountId uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, notifications := database.ReadNotificationsByAccountId(accountId, notificationsLimit)
		if err != nil {
			log.Printf("Failed to load notifications: %v", err)
			return notificationsLoadedMsg{notifications: []domain.Notification{}, unreadCount: 0}
		}

		// Get unread count
		unreadCount, err := database.ReadUnreadNotificationCount(accountId)
		if err != nil {
			log.Printf("Failed to get unread count: %v", err)
			unreadCount = 0
		}

		return notificationsLoadedMsg{
			notifications: *notifications,
			unreadCount:   unreadCount,
		}
	}
}

// deleteNotification deletes a single notification
func deleteNotification(notificationId uuid.UUID, accountId uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		if err := database.DeleteNotification(notificationId); err != nil {
			log.Printf("Failed to delete notification: %v", err)
		}
		// Reload notifications to update the view
		return loadNotifications(accountId)()
	}
}

// deleteAllNotifications deletes all notifications for an account
func deleteAllNotifications(accountId uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		if err := database.DeleteAllNotifications(accountId); err != nil {
			log.Printf("Failed to delete all notifications: %v", err)
		}
		// Reload notifications to update the view
		return loadNotifications(accountId)()
	}
}

// tickRefresh returns a command that triggers a refresh after a delay
func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// formatTimeAgo formats a time as a relative string (e.g., "2h ago")
func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		return fmt.Sprintf("%dm ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		return fmt.Sprintf("%dh ago", hours)
	} else if duration < 7*24*time.Hour {
		days := int(duration.Hours() / 24)
		return fmt.Sprintf("%dd ago", days)
	} else if duration < 30*24*time.Hour {
		weeks := int(duration.Hours() / 24 / 7)
		return fmt.Sprintf("%dw ago", weeks)
	} else if duration < 365*24*time.Hour {
		months := int(duration.Hours() / 24 / 30)
		return fmt.Sprintf("%dmo ago", months)
	} else {
		years := int(duration.Hours() / 24 / 365)
		return fmt.Sprintf("%dy ago", years)
	}
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
