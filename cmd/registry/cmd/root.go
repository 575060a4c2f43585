// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/internal"
	"github.com/oneconcern/collection-registry/pkg/config"
	"github.com/oneconcern/collection-registry/pkg/dlogger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "registry",
	Short: "registry publishes the metadata of Prefect collections",
	Long: `registry publishes the metadata of Prefect collections.

The metadata of blocks, flows and workers published by each collection release is generated
from the collection's manifest, validated against its JSON schema, then recorded in a
registry repository: once as an immutable snapshot per release, and merged into an aggregate
view per kind of metadata.

Updates are committed to a branch of the registry and proposed as a pull request.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if registryFlags.root.cpuProf {
			stop, err := internal.CPUProfile("cpu.prof")
			if err != nil {
				wrapFatalln("failed to start CPU profiling", err)
				return
			}
			stopProfile = stop
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopProfile != nil {
			stopProfile()
			stopProfile = nil
		}
	},
}

var (
	registryConfig *config.Config
	logger         = zap.NewNop()
	stopProfile    func()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addConfigFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addLocalFlag(rootCmd)
	addCPUProfFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	registryConfig, err = config.Load(config.New(registryFlags.root.config))
	if err != nil {
		wrapFatalln("failed to load configuration", err)
		return
	}

	level := registryConfig.Log.Level
	if registryFlags.root.logLevel != "" {
		level = registryFlags.root.logLevel
	}
	logger, err = dlogger.GetLogger(level, dlogger.Encoding(registryConfig.Log.Format))
	if err != nil {
		wrapFatalln("failed to set log level", err)
		return
	}
}
