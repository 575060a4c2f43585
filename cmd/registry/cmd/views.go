// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/core"
)

var validateViewsCmd = &cobra.Command{
	Use:   "validate-views",
	Short: "Validate the aggregate views of a registry checkout",
	Long: `Validate every aggregate view found in a directory against the schema of its variety.

The variety of a view is taken from its file name, e.g. aggregate-block-metadata.json.
`,
	Run: func(cmd *cobra.Command, args []string) {
		checked, err := core.ValidateViews(afero.NewOsFs(), registryFlags.views.dir, nil)
		for _, file := range checked {
			infoLogger.Printf("checked %s", file)
		}
		if err != nil {
			wrapFatalln("invalid views", err)
			return
		}
		infoLogger.Printf("%s %d views", color.GreenString("validated"), len(checked))
	},
}

var findByCapabilityCmd = &cobra.Command{
	Use:   "find-by-capability",
	Short: "Find the blocks exposing some capabilities",
	Long: `Scan the block snapshots of a registry checkout, and list the blocks exposing any of the
given capabilities, as collection:version:slug.
`,
	Example: `registry find-by-capability --capability read-path --capability write-path`,
	Run: func(cmd *cobra.Command, args []string) {
		matches, err := core.FindByCapability(afero.NewOsFs(), registryFlags.views.root, registryFlags.views.capabilities)
		if err != nil {
			wrapFatalln("failed to scan block snapshots", err)
			return
		}
		if matches == nil {
			matches = []core.CapabilityMatch{}
		}
		if err = print(cmd, matches); err != nil {
			wrapFatalln("failed to print matches", err)
		}
	},
}

func init() {
	addViewsDirFlag(validateViewsCmd)

	addRootDirFlag(findByCapabilityCmd)
	if err := findByCapabilityCmd.MarkFlagRequired(addCapabilityFlag(findByCapabilityCmd)); err != nil {
		logFatalln(err)
	}
	addFormatFlag(findByCapabilityCmd, "list", map[string]Formatter{
		"list": FormatterFunc(func(w io.Writer, data interface{}) error {
			for _, match := range data.([]core.CapabilityMatch) {
				fmt.Fprintln(w, match)
			}
			return nil
		}),
	})

	rootCmd.AddCommand(validateViewsCmd)
	rootCmd.AddCommand(findByCapabilityCmd)
}
