// Copyright © 2018 One Concern

package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/core"
	"github.com/oneconcern/collection-registry/pkg/model"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a metadata record of a collection release",
	Long: `Submit a metadata record of the latest release of a collection to a branch of the registry.

The record is a JSON object of metadata items keyed by slug. It is validated against the schema
of its variety, recorded as a snapshot of the release, then merged into the aggregate view.

Submitting the same record twice does not change the registry.
`,
	Example: `registry submit --collection prefect-aws --variety block --branch update-metadata --file blocks.json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		variety, err := model.ParseVariety(registryFlags.submit.variety)
		if err != nil {
			wrapFatalln("invalid variety", err)
			return
		}
		record, err := readRecord(registryFlags.submit.file)
		if err != nil {
			wrapFatalln("failed to read metadata record", err)
			return
		}
		submitter, err := newSubmitter()
		if err != nil {
			wrapFatalln("failed to initialize submitter", err)
			return
		}
		err = submitter.Submit(ctx, core.SubmitRequest{
			Metadata:   record,
			Collection: registryFlags.submit.collection,
			Branch:     registryFlags.submit.branch,
			Variety:    variety,
		})
		if err != nil {
			wrapFatalln("submission failed", err)
			return
		}
		infoLogger.Printf("%s %s metadata for %s on %s", color.GreenString("submitted"),
			variety, registryFlags.submit.collection, registryFlags.submit.branch)
	},
}

func readRecord(file string) (model.Record, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}
	var record model.Record
	if err = model.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func init() {
	requiredFlags := []string{
		addCollectionFlag(submitCmd),
		addVarietyFlag(submitCmd),
		addBranchFlag(submitCmd, &registryFlags.submit.branch, ""),
		addRecordFileFlag(submitCmd),
	}
	for _, flag := range requiredFlags {
		err := submitCmd.MarkFlagRequired(flag)
		if err != nil {
			logFatalln(err)
		}
	}
	rootCmd.AddCommand(submitCmd)
}
