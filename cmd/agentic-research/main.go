package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/agentic-research/pkg/doc"
	"github.com/go-go-golems/agentic-research/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// exitError carries the process exit code of a failed invocation.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func InitLogger(config *logConfig) error {
	logger := log.Logger
	if config.WithCaller {
		logger = logger.With().Caller().Logger()
	}

	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = logger.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		return errors.Errorf("unknown log level %q", config.Level)
	}

	return nil
}

// initConfig wires viper to the config file, the environment and the
// persistent flags of root.
func initConfig(root *cobra.Command) error {
	viper.SetEnvPrefix("agentic_research")

	configPath, _ := root.PersistentFlags().GetString("config")
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.agentic-research")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/agentic-research")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := settings.SetDefaults(viper.GetViper()); err != nil {
		return err
	}
	if err := viper.BindPFlags(root.PersistentFlags()); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func newRootCommand() *cobra.Command {
	opts := &runOptions{}
	rootCmd := &cobra.Command{
		Use:   "agentic-research",
		Short: "Agentic research tool: research, critique and report on a query with AI agents",
		Example: `  agentic-research -q "Research AI safety regulations in Brazil"
  agentic-research -q "Find all capabilities for agentic product X" -v -c
  agentic-research -q "Market analysis query" -c -r -v
  agentic-research --critique-only --input-file results/research_results.txt -q "Original query"
  agentic-research --final-report-only -q "Original query"
  agentic-research -q "Simple market analysis query" --critique-model gpt-4o
  agentic-research -q "Some complex research query that may require multiple iterations" -vcri`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd.Root())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to the config file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("with-caller", false, "Log caller")
	pf.BoolP("verbose", "v", false, "Enable verbose output")

	pf.String("openai-api-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	pf.String("openai-base-url", "", "Base URL of the OpenAI API")
	pf.String("api-type", string(settings.APITypeResponses), "API used to run the agents (responses, chat)")
	pf.String("results-dir", "", "Directory the results are saved to")
	pf.String("research-model", "", "Specific model to use for research")
	pf.String("critique-model", "", "Specific model to use for critique")
	pf.String("final-report-model", "", "Specific model to use for the final report")

	addRunFlags(rootCmd, opts)

	helpSystem := help.NewHelpSystem()
	if err := doc.AddDocToHelpSystem(helpSystem); err != nil {
		log.Warn().Err(err).Msg("Could not load help topics")
	}
	helpSystem.SetupCobraRootCommand(rootCmd)

	rootCmd.AddCommand(newPlanCommand(), newReplayCommand(), newUsageCommand())
	return rootCmd
}

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "❌ Error: %s\n", err)
	os.Exit(1)
}
