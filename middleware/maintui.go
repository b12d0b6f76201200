package middleware

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/deemkeen/federatoad/db"
	"github.com/deemkeen/federatoad/ui"
	"github.com/muesli/termenv"
)

// MainTui wires an authenticated SSH session into the bubbletea admin TUI.
func MainTui() wish.Middleware {
	teaHandler := func(s ssh.Session) *tea.Program {
		pty, _, active := s.Pty()
		if !active {
			wish.Println(s, "no active terminal, skipping")
			return nil
		}

		err, acc := db.GetDB().ReadAccBySession(s)
		if err != nil || acc == nil {
			log.Println("Could not retrieve the user:", err)
			return nil
		}

		// Docker containers often report a TERM that lacks 256-color support.
		lipgloss.SetColorProfile(termenv.ANSI256)

		m := ui.NewModel(*acc, pty.Window.Width, pty.Window.Height)
		return tea.NewProgram(m, tea.WithFPS(60), tea.WithInput(s), tea.WithOutput(s), tea.WithAltScreen())
	}
	return bm.MiddlewareWithProgramHandler(teaHandler, termenv.ANSI256)
}
