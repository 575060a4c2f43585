// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/core"
	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
)

// exit code of update-all when some collections could not be updated
const partialFailureCode = 2

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the metadata of a collection",
	Long: `Generate the metadata of the latest release of a collection from its manifest,
then submit blocks, flows and workers to a branch of the registry.

The branch is created from the base branch of the registry when it does not exist yet.
`,
	Example: `registry update --collection prefect-aws`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		updater, err := newUpdater()
		if err != nil {
			wrapFatalln("failed to initialize updater", err)
			return
		}
		branch := registryFlags.update.branch
		if err = updater.EnsureBranch(ctx, branch); err != nil {
			wrapFatalln("failed to prepare branch", err)
			return
		}
		if err = updater.UpdateCollection(ctx, registryFlags.submit.collection, branch); err != nil {
			wrapFatalln("update failed", err)
			return
		}
		infoLogger.Printf("%s %s on %s", color.GreenString("updated"), registryFlags.submit.collection, branch)
	},
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update the metadata of all collections with a new release",
	Long: `Update the metadata of all collections listed in the catalog, whenever their latest release
is not yet recorded in the registry.

Stale metadata update branches and pull requests are closed first. Updates are committed to a
fresh branch, then proposed as a single pull request. Collections which failed to update are
reported in the pull request and the command exits with code 2.
`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		updater, err := newUpdater()
		if err != nil {
			wrapFatalln("failed to initialize updater", err)
			return
		}
		report, err := updater.UpdateAll(ctx, registryFlags.update.allBranch)
		if perr := print(cmd, report); perr != nil {
			wrapFatalln("failed to print report", perr)
			return
		}
		switch {
		case errors.Is(err, status.ErrCollectionFailed):
			wrapFatalWithCodef(partialFailureCode, "%v", err)
		case err != nil:
			wrapFatalln("update failed", err)
		}
	},
}

var closeStalePRsCmd = &cobra.Command{
	Use:   "close-stale-prs",
	Short: "Close outdated metadata update pull requests",
	Long: `Delete all metadata update branches but the latest one, and close the open pull requests
proposing them.
`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		updater, err := newUpdater()
		if err != nil {
			wrapFatalln("failed to initialize updater", err)
			return
		}
		latest, err := updater.CloseStaleMetadataPRs(ctx)
		if err != nil {
			wrapFatalln("failed to close stale pull requests", err)
			return
		}
		if latest == "" {
			infoLogger.Println("no metadata update branch")
			return
		}
		infoLogger.Printf("kept %s", color.YellowString(latest))
	},
}

func reportFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		report := data.(core.Report)
		fmt.Fprintf(w, "branch: %s\n", color.YellowString(report.Branch))
		for _, c := range report.Succeeded {
			fmt.Fprintf(w, "%s\t%s\n", color.GreenString("updated"), c)
		}
		for _, c := range report.Failed {
			fmt.Fprintf(w, "%s\t%s\n", color.RedString("failed"), c)
		}
		if len(report.UpToDate) > 0 {
			fmt.Fprintf(w, "%s\t%s\n", color.HiBlackString("up to date"), strings.Join(report.UpToDate, ", "))
		}
		if report.PullRequest.URL != "" {
			fmt.Fprintf(w, "pull request: %s\n", report.PullRequest.URL)
		}
		return nil
	}
}

func init() {
	for _, flag := range []string{addCollectionFlag(updateCmd)} {
		if err := updateCmd.MarkFlagRequired(flag); err != nil {
			logFatalln(err)
		}
	}
	addBranchFlag(updateCmd, &registryFlags.update.branch, model.MetadataBranch)
	addManifestsDirFlag(updateCmd)

	addBranchFlag(updateAllCmd, &registryFlags.update.allBranch, "")
	addManifestsDirFlag(updateAllCmd)
	addFormatFlag(updateAllCmd, "report", map[string]Formatter{
		"report": reportFormatter(),
	})

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateAllCmd)
	rootCmd.AddCommand(closeStalePRsCmd)
}
