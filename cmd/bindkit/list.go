package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()

			scripts := a.catalog.Scripts()
			if flagAll {
				scripts = a.catalog.AllScripts()
			}
			if len(scripts) == 0 {
				fmt.Println(gray("no scripts found"))
				return nil
			}

			for _, info := range scripts {
				marker := green("*")
				if !info.IsExecutable {
					marker = red("!")
				} else if !a.catalog.IsEnabled(info.Identifier) {
					marker = gray("-")
				}

				line := fmt.Sprintf("%s %s %s", marker, bold(info.DisplayName), gray(info.Identifier))
				if info.IsExternal {
					line += " " + cyan("(external)")
				}
				if chord, ok := a.hotkeys.ChordFor(info.Identifier); ok {
					line += " " + yellow(chord)
				}
				fmt.Println(line)

				if info.AnalyzerError != "" {
					fmt.Println(gray("    " + info.AnalyzerError))
				}
			}

			if failed := a.catalog.FailedScripts(); len(failed) > 0 && flagAll {
				fmt.Println()
				fmt.Println(bold("failed files"))
				for path, reason := range failed {
					fmt.Printf("  %s %s\n", path, gray(reason))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "include disabled scripts and failed files")
	return cmd
}
