package cmd

import (
	"fmt"
	"os"
	"strings"

	run "github.com/smartscale/scale-server/cmd/smartscale/run"
	"github.com/smartscale/scale-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const scalePrefix = "SCALE"

var Cmd = &cobra.Command{
	Use:   "smartscale",
	Short: "SmartScale inference server",
	Long:  "Asynchronous image classification service for produce scales: accepts photos over HTTP, classifies them with a hot-swappable model, and prices the result",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(scalePrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		// Bind all flags from the current command persistent parent flags
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		if err := config.InitConfig(); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("scale-home", "", "Path to the smartscale home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("scale_home", pflags.Lookup("scale-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(run.Cmd, dbCmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
