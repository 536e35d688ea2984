package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bindkit/internal/executor"
)

func newRunCommand() *cobra.Command {
	var (
		flagArgs   []string
		flagPreset string
	)

	cmd := &cobra.Command{
		Use:   "run <script> [--arg name=value ...]",
		Short: "Execute a script once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.loadCatalog(ctx); err != nil {
				return err
			}
			defer a.shutdown()

			args, err := parseArgPairs(flagArgs)
			if err != nil {
				return err
			}

			name := positional[0]
			if flagPreset != "" {
				if info, ok := a.catalog.Find(name); ok {
					args = a.catalog.MergePreset(info.Identifier, flagPreset, args)
				}
			}

			res, err := a.runScript(ctx, name, args)
			if err != nil {
				return err
			}
			printResult(res)
			if !res.Success {
				return fmt.Errorf("script failed")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "script argument as name=value, repeatable")
	cmd.Flags().StringVar(&flagPreset, "preset", "", "apply a stored argument preset")
	return cmd
}

func parseArgPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --arg %q, expected name=value", pair)
		}
		args[name] = value
	}
	return args, nil
}

func printResult(res *executor.Result) {
	if res.Success {
		fmt.Println(green("ok"), res.Message)
	} else {
		fmt.Println(red("failed"), res.Message)
	}
	if out := strings.TrimSpace(res.Output); out != "" {
		fmt.Println(gray(out))
	}
	if res.ReturnCode != nil {
		fmt.Println(gray(fmt.Sprintf("exit code: %d", *res.ReturnCode)))
	}
}
