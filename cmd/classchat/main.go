package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"classchat/internal/app"
	"classchat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	var (
		configPath string
		noTUI      bool
		mockMode   bool
	)

	root := &cobra.Command{
		Use:     "classchat",
		Short:   "classchat - a chat space for your classroom",
		Long:    "classchat keeps per-student conversation sessions and shared classroom settings on this device.\n\nTeachers log in with their name and get a classroom code to share; students join with the code.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = app.DefaultConfigPath()
			}
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}

			application, err := app.NewApplication(cfg, mockMode)
			if err != nil {
				return err
			}

			if noTUI {
				return runREPL(application)
			}

			p := tea.NewProgram(tui.New(application), tea.WithAltScreen(), tea.WithReportFocus())
			_, err = p.Run()
			return err
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().BoolVarP(&noTUI, "no-tui", "n", false, "use a simple REPL instead of the TUI")
	root.Flags().BoolVar(&mockMode, "mock", false, "answer with a canned assistant (no network)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runREPL is the bare fallback for terminals the TUI can't drive. Students
// only; teachers manage settings through the TUI.
func runREPL(application *app.Application) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Your name: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("Classroom code: ")
	code, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	room, err := application.LoginStudent(strings.TrimSpace(name), strings.TrimSpace(code))
	if err != nil {
		return err
	}
	fmt.Printf("Joined classroom %s (%s). Type a question, or 'quit' to leave.\n", room.Code, room.TeacherName)

	sess, err := application.NewSession()
	if err != nil {
		return err
	}

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		updated, err := application.SendMessage(context.Background(), sess, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not save this conversation: %v\n", err)
			continue
		}
		sess = updated
		last := sess.Messages[len(sess.Messages)-1]
		fmt.Println(last.Text)
	}
	return application.Logout()
}
