package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/promptgallery-backend/internal/app"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:           "gallerytool",
	Short:         "Maintenance jobs for the prompt gallery",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewTool(cmd.Context())
		if err != nil {
			return err
		}
		application = a
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fillHashesCmd, embedBackfillCmd, reclusterCmd, migrateCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if application != nil {
		application.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
