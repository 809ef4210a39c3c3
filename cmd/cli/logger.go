package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"canisdk/core"
	"canisdk/corelog"
)

var (
	logger     *corelog.Logger
	loggerOnce sync.Once
	cliCaller  = core.Principal("canisdk-cli")
)

func loggerInit(_ *cobra.Command, _ []string) error {
	loggerOnce.Do(func() {
		a := appStore()
		logger = corelog.Init(cliCaller, a.SubMemory(smLoggerCfg), a.SubMemory(smLoggerSlots), a.SubMemory(smLoggerState),
			corelog.DefaultSettings(), func() int64 { return time.Now().UnixNano() })
	})
	return nil
}

var LoggerCmd = &cobra.Command{
	Use:               "logger",
	Short:             "Reconfigure and read back the in-memory log ring",
	PersistentPreRunE: loggerInit,
}

func init() {
	LoggerCmd.AddCommand(&cobra.Command{
		Use:   "set-filter <filter>",
		Short: "Install a new filter directive string, e.g. \"info,scheduler=debug\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logger.SetFilter(cliCaller, args[0])
		},
	})

	LoggerCmd.AddCommand(&cobra.Command{
		Use:   "log <target> <level> <message>",
		Short: "Emit a log line at the given level (trace|debug|info|warn|error)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, level, msg := args[0], args[1], args[2]
			switch level {
			case "trace":
				logger.Tracef(target, "%s", msg)
			case "debug":
				logger.Debugf(target, "%s", msg)
			case "info":
				logger.Infof(target, "%s", msg)
			case "warn":
				logger.Warnf(target, "%s", msg)
			case "error":
				logger.Errorf(target, "%s", msg)
			default:
				return fmt.Errorf("unknown level %q", level)
			}
			return nil
		},
	})

	LoggerCmd.AddCommand(&cobra.Command{
		Use:   "tail <offset> <count>",
		Short: "Page through the in-memory ring sink",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var offset, count uint64
			if _, err := fmt.Sscanf(args[0], "%d", &offset); err != nil {
				return fmt.Errorf("invalid offset %q", args[0])
			}
			if _, err := fmt.Sscanf(args[1], "%d", &count); err != nil {
				return fmt.Errorf("invalid count %q", args[1])
			}
			recs, err := logger.GetLogs(cliCaller, offset, count)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", levelName(r.Level), r.Target, r.Message)
			}
			return nil
		},
	})
}

func levelName(l corelog.Level) string {
	switch l {
	case corelog.LevelTrace:
		return "TRACE"
	case corelog.LevelDebug:
		return "DEBUG"
	case corelog.LevelInfo:
		return "INFO"
	case corelog.LevelWarn:
		return "WARN"
	case corelog.LevelError:
		return "ERROR"
	default:
		return "?"
	}
}
