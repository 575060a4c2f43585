// Copyright © 2018 One Concern

package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/core"
	"github.com/oneconcern/collection-registry/pkg/storage"
)

var syncViewCmd = &cobra.Command{
	Use:   "sync-view",
	Short: "Propose an aggregate view of the registry to another repository",
	Long: `Copy an aggregate view from the base branch of the registry to another repository, on a new
branch, then open a pull request. By default, the worker view is proposed to the core repository.

Nothing is proposed when the target repository already holds the same content.
`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		updater, err := newUpdater()
		if err != nil {
			wrapFatalln("failed to initialize updater", err)
			return
		}
		req, err := syncRequest()
		if err != nil {
			wrapFatalln("invalid target", err)
			return
		}
		res, err := updater.SyncView(ctx, req)
		if err != nil {
			wrapFatalln("failed to sync view", err)
			return
		}
		if res.Unchanged {
			infoLogger.Printf("%s is up to date", req.Target)
			return
		}
		infoLogger.Printf("%s %s on %s", color.GreenString("proposed"), res.Branch, req.Target)
		if res.PullRequest.URL != "" {
			infoLogger.Printf("pull request: %s", res.PullRequest.URL)
		}
	},
}

func syncRequest() (core.SyncRequest, error) {
	cfg := registryConfig.Sync
	req := core.SyncRequest{
		ViewPath:   cfg.ViewPath,
		TargetPath: cfg.TargetPath,
		TargetBase: registryFlags.sync.targetBase,
		Branch:     registryFlags.sync.branch,
	}
	if registryFlags.sync.view != "" {
		req.ViewPath = registryFlags.sync.view
	}
	if registryFlags.sync.targetPath != "" {
		req.TargetPath = registryFlags.sync.targetPath
	}
	target := cfg.TargetRepo
	if registryFlags.sync.targetRepo != "" {
		target = registryFlags.sync.targetRepo
	}
	if target != "" {
		repo, err := storage.ParseRepository(target)
		if err != nil {
			return req, err
		}
		req.Target = repo
	}
	return req, nil
}

func init() {
	addViewPathFlag(syncViewCmd)
	addTargetRepoFlag(syncViewCmd)
	addTargetPathFlag(syncViewCmd)
	addTargetBaseFlag(syncViewCmd)
	addBranchFlag(syncViewCmd, &registryFlags.sync.branch, "")

	rootCmd.AddCommand(syncViewCmd)
}
