package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/OrthoBot/common/version"
	"github.com/bdobrica/OrthoBot/internal/orthobot/app"
	"github.com/bdobrica/OrthoBot/internal/orthobot/observability"
)

var (
	config  *app.Config
	rootCmd = &cobra.Command{
		Use:           "orthobot",
		Short:         "Orthopedic patient-support chatbot service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config = app.ConfigFromEnv()
			observability.Setup(config.LogLevel, config.LogFormat)
		},
	}
)

func main() {
	rootCmd.AddCommand(serveCmd(), kbCmd(), sessionsCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateServe(); err != nil {
				return err
			}
			fmt.Printf("OrthoBot %s\n", version.Info())

			orthobot, err := app.New(config)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer orthobot.Stop()
			return orthobot.Run()
		},
	}
}

func kbCmd() *cobra.Command {
	kb := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
	}

	var (
		dir  string
		skip []string
	)
	upload := &cobra.Command{
		Use:   "upload",
		Short: "Chunk, embed and index every JSON file in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateUpload(); err != nil {
				return err
			}
			orthobot, err := app.New(config)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer orthobot.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := orthobot.Uploader().UploadDir(ctx, dir, skip...)
			fmt.Fprintf(cmd.OutOrStdout(), "files: %d  chunks: %d  failed batches: %d\n",
				rep.Files, rep.Chunks, rep.FailedBatches)
			for _, f := range rep.FailedFiles {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", f)
			}
			return err
		},
	}
	upload.Flags().StringVarP(&dir, "dir", "d", "./kb", "directory of knowledge JSON files")
	upload.Flags().StringSliceVar(&skip, "skip", []string{"package.json", "package-lock.json"}, "file names to ignore")
	kb.AddCommand(upload)
	return kb
}

func sessionsCmd() *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Manage voice sessions",
	}
	sessions.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete voice sessions older than VOICE_SESSION_MAX_AGE",
		RunE: func(cmd *cobra.Command, args []string) error {
			orthobot, err := app.New(config)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer orthobot.Stop()

			n, err := orthobot.CleanupSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired voice sessions\n", n)
			return nil
		},
	})
	return sessions
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "OrthoBot %s\n", version.Info())
		},
	}
}
