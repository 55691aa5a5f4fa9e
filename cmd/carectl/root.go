package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"plantcare/internal/app"
	"plantcare/internal/config"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	app *app.App
}

func rootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "carectl",
		Short:         "Inspect and operate the plant care engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		classifyCommand(e),
		rebuildCommand(e),
		statsCommand(e),
		sendTestCommand(e),
		logCommand(e),
		sweepCommand(e),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		a, err := app.New(cfg, cfg.NewLogger())
		if err != nil {
			return err
		}
		e.app = a
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if e.app != nil {
			return e.app.Close()
		}
		return nil
	}

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
