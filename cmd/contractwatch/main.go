// Package main provides the contractwatch binary entry point.
// Contractwatch polls document sources for new contracts, analyzes them for
// legal risk, and alerts operators about high-risk agreements and legal
// changes.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/aissential/contractwatch/llm/providers"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "contractwatch"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Contract monitoring assistant",
		Long: `Contractwatch watches document sources for new contracts, extracts
their text, analyzes them for legal risk with an LLM, and sends Telegram
alerts for agreements above the risk threshold.

It also runs a scheduled legal watch that summarizes regulatory changes
relevant to the configured jurisdiction.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the monitoring daemon",
		Long: `Run scan cycles on the configured interval, the legal watch on its
schedule, and react to new files in the local inbox until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runDaemon(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runScanOnce(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze a single document file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runAnalyzeFile(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "legal",
		Short: "Run the legal watch once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runLegalOnce(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show processed-file state and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runStatus()
		},
	})

	expirationsCmd := &cobra.Command{
		Use:   "expirations",
		Short: "Report contracts expiring soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runExpirations(days)
		},
	}
	expirationsCmd.Flags().Int("days", 0, "Report window in days (default from configuration)")

	expirationAddCmd := &cobra.Command{
		Use:   "add",
		Short: "Track a contract's expiration date",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			date, _ := cmd.Flags().GetString("date")
			contractType, _ := cmd.Flags().GetString("type")
			parties, _ := cmd.Flags().GetStringSlice("party")
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runExpirationAdd(id, name, date, contractType, parties)
		},
	}
	expirationAddCmd.Flags().String("id", "", "Contract identifier")
	expirationAddCmd.Flags().String("name", "", "Contract name")
	expirationAddCmd.Flags().String("date", "", "Expiration date (YYYY-MM-DD)")
	expirationAddCmd.Flags().String("type", "", "Contract type (employee, client, supplier)")
	expirationAddCmd.Flags().StringSlice("party", nil, "Contract party (repeatable)")
	_ = expirationAddCmd.MarkFlagRequired("id")
	_ = expirationAddCmd.MarkFlagRequired("name")
	_ = expirationAddCmd.MarkFlagRequired("date")
	expirationsCmd.AddCommand(expirationAddCmd)

	expirationRemoveCmd := &cobra.Command{
		Use:   "remove <contract-id>",
		Short: "Stop tracking a contract's expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runExpirationRemove(args[0])
		},
	}
	expirationsCmd.AddCommand(expirationRemoveCmd)
	cmd.AddCommand(expirationsCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget processed files so they are reanalyzed",
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, _ := cmd.Flags().GetString("id")
			app, err := newApp(cmd.Context(), configPath, logLevel)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runReset(fileID)
		},
	}
	resetCmd.Flags().String("id", "", "Forget a single file ID instead of everything")
	cmd.AddCommand(resetCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Long: `Write the default configuration to a YAML file (contractwatch.yaml
unless a path is given) for editing. Refuses to overwrite an existing file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "contractwatch.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return runInit(path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}
