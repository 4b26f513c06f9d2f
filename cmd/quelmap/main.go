package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quelmap-inc/quelmap/internal/cli"
	"github.com/quelmap-inc/quelmap/pkg/log"
)

func main() {
	logLevel := zapcore.InfoLevel
	if lvl, err := zapcore.ParseLevel(os.Getenv("QUELMAP_LOG_LEVEL")); err == nil && os.Getenv("QUELMAP_LOG_LEVEL") != "" {
		logLevel = lvl
	}
	logger := log.InitLog(zap.NewAtomicLevelAt(logLevel))
	defer func() { _ = logger.Sync() }()

	undo := zap.ReplaceGlobals(logger)
	defer undo()

	command := NewQuelmapCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewQuelmapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quelmap [flags] [options]",
		Short: "quelmap runs data analyses against a quelmap server.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdAnalyze())
	cmd.AddCommand(cli.NewCmdFollowup())
	cmd.AddCommand(cli.NewCmdRedo())
	cmd.AddCommand(cli.NewCmdReport())
	cmd.AddCommand(cli.NewCmdHistory())
	cmd.AddCommand(cli.NewCmdTables())
	cmd.AddCommand(cli.NewCmdTable())
	cmd.AddCommand(cli.NewCmdModels())
	cmd.AddCommand(cli.NewCmdSettings())
	cmd.AddCommand(cli.NewCmdUpload())
	cmd.AddCommand(cli.NewCmdConnectPostgres())
	cmd.AddCommand(cli.NewCmdUploadSQLite())
	cmd.AddCommand(cli.NewCmdRenameTable())
	cmd.AddCommand(cli.NewCmdDeleteTable())
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
