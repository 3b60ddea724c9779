// Package cmd wires every boardkp subcommand.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"BoardKP/logger"
	"BoardKP/monitor"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	EnvPrefix  = "BOARDKP"
	ConfigName = "boardkp"
)

var validate = validator.New()

type app struct {
	v *viper.Viper
}

// NewRootCmd builds the command tree. Flag values may also come from BOARDKP_* variables and
// from boardkp.yaml, where a section named after the subcommand overrides top-level keys.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "boardkp",
		Short:         "Dartboard keypoint dataset tools, trainer and inference server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./"+ConfigName+".yaml if present)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.Bool("debug", false, "debug logging")
	pf.Int("metrics-port", 0, "serve Prometheus metrics on this port, 0 disables")

	root.AddCommand(
		a.exportYoloCmd(),
		a.exportKpCmd(),
		a.exportKpYoloCmd(),
		a.remapCmd(),
		a.downloadCmd(),
		a.trainCmd(),
		a.validateCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := a.v
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	} else if section := v.GetStringMap(cmd.Name()); len(section) > 0 {
		if err := v.MergeConfigMap(section); err != nil {
			return err
		}
	}

	if err := logger.Init(v.GetBool("debug")); err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Log().Debug("config loaded", zap.String("file", used))
	}
	if port := v.GetInt("metrics-port"); port > 0 {
		go monitor.StartMon(port, cmd.Context())
	}
	return nil
}

// check runs struct validation and names the offending flags.
func check(opts any) error {
	err := validate.Struct(opts)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", flagName(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
}

// renamed holds option fields whose flag is not the kebab-case field name.
var renamed = map[string]string{"Src": "in", "Dst": "out", "LR": "lr"}

// flagName turns a Go field name into its kebab-case flag, ImagesDir -> images-dir.
func flagName(field string) string {
	if f, ok := renamed[field]; ok {
		return f
	}
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// explicit reports whether name was given on the command line, in the environment or in the
// config file rather than left at its default.
func (a *app) explicit(name string) bool {
	return a.v.IsSet(name)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Log().Error("command failed", zap.Error(err))
		logger.Sync()
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
