package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bindkit/internal/service"
	"bindkit/internal/settings"
)

func newServicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Inspect and control service scripts",
	}
	cmd.AddCommand(newServicesListCommand())
	cmd.AddCommand(newServicesStartCommand())
	cmd.AddCommand(newServicesStopCommand())
	return cmd
}

func newServicesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show configured service scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			defer a.shutdown()

			configured := a.store.Group(settings.GroupServices)
			if len(configured) == 0 {
				fmt.Println(gray("no services configured"))
				return nil
			}

			for identifier := range configured {
				cfg := a.store.ServiceConfigFor(identifier)
				status := gray("stopped")
				if snap, ok := a.services.Snapshot(identifier); ok {
					status = green(fmt.Sprintf("%s pid=%d restarts=%d", snap.State, snap.PID, snap.RestartCount))
				}
				policy := fmt.Sprintf("auto_restart=%v max=%d delay=%ds", cfg.AutoRestart, cfg.MaxRestarts, cfg.RestartDelaySeconds)
				fmt.Printf("%s %s %s\n", bold(identifier), status, gray(policy))
			}
			return nil
		},
	}
}

func newServicesStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <script>",
		Short: "Start a service script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}

			info, ok := a.catalog.Find(args[0])
			if !ok {
				return fmt.Errorf("unknown script: %s", args[0])
			}
			pid, err := a.services.Start(info.Identifier, info.FilePath, nil)
			if err != nil {
				return err
			}
			fmt.Println(green("started"), bold(info.Identifier), gray(fmt.Sprintf("pid=%d", pid)))
			return nil
		},
	}
}

func newServicesStopCommand() *cobra.Command {
	var flagTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop <script>",
		Short: "Stop a running service script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.services.Stop(args[0], flagTimeout); err != nil {
				return err
			}
			fmt.Println(green("stopped"), bold(args[0]))
			return nil
		},
	}

	cmd.Flags().DurationVar(&flagTimeout, "timeout", service.StopTimeout, "graceful stop window before the process tree is killed")
	return cmd
}
