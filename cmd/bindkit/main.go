// Command bindkit runs the script runtime: discovery, execution, services,
// schedules, and global hotkeys. Without a subcommand it runs as a resident
// daemon; subcommands give one-shot access to the same runtime.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether both ends of the terminal are interactive.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	flagConfigDir string
	flagMinimized bool
)

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bindkit"
	}
	return filepath.Join(home, ".bindkit")
}

func baseDir() string {
	if flagConfigDir != "" {
		return flagConfigDir
	}
	return defaultBaseDir()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bindkit",
		Short:         "Script launcher, supervisor, and scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}

	root.PersistentFlags().StringVar(&flagConfigDir, "config", "", "configuration directory (default ~/.bindkit)")
	root.Flags().BoolVar(&flagMinimized, "minimized", false, "start without the startup banner")

	root.AddCommand(newRunCommand())
	root.AddCommand(newListCommand())
	root.AddCommand(newServicesCommand())
	root.AddCommand(newSchedulesCommand())
	return root
}

func main() {
	if !isTTY() {
		color.NoColor = true
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}
