package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bindkit/internal/schedule"
	"bindkit/internal/settings"
)

func newSchedulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect and configure script schedules",
	}
	cmd.AddCommand(newSchedulesListCommand())
	cmd.AddCommand(newSchedulesSetCommand())
	cmd.AddCommand(newSchedulesEnableCommand(true))
	cmd.AddCommand(newSchedulesEnableCommand(false))
	return cmd
}

func newSchedulesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show configured schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			defer a.shutdown()

			configured := a.store.Group(settings.GroupSchedules)
			if len(configured) == 0 {
				fmt.Println(gray("no schedules configured"))
				return nil
			}

			for identifier := range configured {
				cfg, ok := a.store.ScheduleConfigFor(identifier)
				if !ok {
					continue
				}
				state := green("enabled")
				if !cfg.Enabled {
					state = gray("disabled")
				}

				var spec string
				if cfg.Type == string(schedule.TypeCron) {
					spec = "cron " + cfg.CronExpression
				} else {
					spec = fmt.Sprintf("every %s", time.Duration(cfg.IntervalSeconds)*time.Second)
				}

				line := fmt.Sprintf("%s %s %s", bold(identifier), state, cyan(spec))
				if cfg.LastRun > 0 {
					last := time.Unix(int64(cfg.LastRun), 0)
					line += " " + gray("last "+last.Format(time.RFC3339))
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newSchedulesSetCommand() *cobra.Command {
	var (
		flagEvery time.Duration
		flagCron  string
	)

	cmd := &cobra.Command{
		Use:   "set <script>",
		Short: "Create or replace a script's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (flagEvery == 0) == (flagCron == "") {
				return fmt.Errorf("exactly one of --every or --cron is required")
			}

			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()

			info, ok := a.catalog.Find(args[0])
			if !ok {
				return fmt.Errorf("unknown script: %s", args[0])
			}

			cfg := settings.ScheduleConfig{Enabled: true}
			if flagCron != "" {
				if err := schedule.ValidateCron(flagCron); err != nil {
					return err
				}
				cfg.Type = string(schedule.TypeCron)
				cfg.CronExpression = flagCron
			} else {
				if err := schedule.ValidateInterval(flagEvery); err != nil {
					return err
				}
				cfg.Type = string(schedule.TypeInterval)
				cfg.IntervalSeconds = int(flagEvery / time.Second)
			}

			if err := a.store.SetScheduleConfig(info.Identifier, cfg); err != nil {
				return err
			}
			fmt.Println(green("schedule saved for"), bold(info.Identifier))
			return nil
		},
	}

	cmd.Flags().DurationVar(&flagEvery, "every", 0, "fixed interval, e.g. 15m or 1h30m")
	cmd.Flags().StringVar(&flagCron, "cron", "", "five-field cron expression, e.g. '0 9 * * 1-5'")
	return cmd
}

func newSchedulesEnableCommand(enable bool) *cobra.Command {
	use, short := "enable <script>", "Enable a script's schedule"
	if !enable {
		use, short = "disable <script>", "Disable a script's schedule"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(baseDir())
			if err != nil {
				return err
			}
			defer a.shutdown()

			cfg, ok := a.store.ScheduleConfigFor(args[0])
			if !ok {
				return fmt.Errorf("no schedule configured for %s", args[0])
			}
			cfg.Enabled = enable
			if err := a.store.SetScheduleConfig(args[0], cfg); err != nil {
				return err
			}
			if enable {
				fmt.Println(green("enabled"), bold(args[0]))
			} else {
				fmt.Println(yellow("disabled"), bold(args[0]))
			}
			return nil
		},
	}
}
