// Package cmd is for command line interactions with the mashwrapper application
package cmd

import (
	"log"

	"github.com/jennahamlin/mashwrapper/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.uber.org/zap/zapcore"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use: "mashwrapper",
	Short: `Curate reference genomes and identify bacterial species with Mash.
Download and clean assemblies from NCBI, sketch them into a reference
database, and call the closest species for query isolates`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringP("out", "o", "", "Output directory for run artifacts")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")
	viper.BindPFlag("out", RootCmd.PersistentFlags().Lookup("out"))
	viper.BindPFlag("verbose", RootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the settings file and environment variables.
func initConfig() {
	viper.SetConfigName("settings")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.mashwrapper")

	viper.AutomaticEnv()

	// the settings file is optional, defaults cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("failed to read the settings file: %v", err)
		}
	}

	if viper.GetBool("verbose") {
		if err := logger.Init(zapcore.DebugLevel); err != nil {
			log.Fatalf("failed to rebuild the logger: %v", err)
		}
	}
}
