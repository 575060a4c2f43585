// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/model"
)

type flagsT struct {
	root struct {
		config   string
		logLevel string
		local    string
		cpuProf  bool
	}
	submit struct {
		collection string
		variety    string
		branch     string
		file       string
	}
	generate struct {
		manifest string
		version  string
		format   string
	}
	update struct {
		branch    string
		allBranch string
		manifests string
	}
	views struct {
		dir          string
		root         string
		capabilities []string
	}
	sync struct {
		view       string
		targetRepo string
		targetPath string
		targetBase string
		branch     string
	}
}

var registryFlags = flagsT{}

func addConfigFlag(cmd *cobra.Command) string {
	configFile := "config"
	cmd.PersistentFlags().StringVar(&registryFlags.root.config, configFile, "",
		"The configuration file. Defaults to $REGISTRY_CONFIG, or registry.yaml in ., $HOME/.registry or /etc/registry")
	return configFile
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&registryFlags.root.logLevel, logLevel, "",
		"The logging level: debug, info, warn, error or none. Overrides log.level from the configuration")
	return logLevel
}

func addLocalFlag(cmd *cobra.Command) string {
	local := "local"
	cmd.PersistentFlags().StringVar(&registryFlags.root.local, local, "",
		"Work on a registry kept in this local directory instead of GitHub. Latest releases are read from releases.yaml in that directory")
	return local
}

func addCPUProfFlag(cmd *cobra.Command) string {
	cpuProf := "cpuprof"
	cmd.PersistentFlags().BoolVar(&registryFlags.root.cpuProf, cpuProf, false, "Writes a CPU profile of the command to cpu.prof")
	return cpuProf
}

func addCollectionFlag(cmd *cobra.Command) string {
	collection := "collection"
	cmd.Flags().StringVar(&registryFlags.submit.collection, collection, "", "The name of the collection, e.g. prefect-aws")
	return collection
}

func addVarietyFlag(cmd *cobra.Command) string {
	variety := "variety"
	cmd.Flags().StringVar(&registryFlags.submit.variety, variety, "",
		"The kind of metadata: block, flow or worker")
	return variety
}

func addBranchFlag(cmd *cobra.Command, target *string, defaultBranch string) string {
	branch := "branch"
	cmd.Flags().StringVar(target, branch, defaultBranch, "The branch receiving the changes")
	return branch
}

func addRecordFileFlag(cmd *cobra.Command) string {
	file := "file"
	cmd.Flags().StringVar(&registryFlags.submit.file, file, "", "The JSON file holding the metadata record, keyed by slug. Use - to read stdin")
	return file
}

func addManifestFileFlag(cmd *cobra.Command) string {
	manifest := "manifest"
	cmd.Flags().StringVar(&registryFlags.generate.manifest, manifest, "",
		"A manifest file to generate metadata from, instead of the manifest published by the collection")
	return manifest
}

func addVersionFlag(cmd *cobra.Command) string {
	version := "version"
	cmd.Flags().StringVar(&registryFlags.generate.version, version, "",
		"The release of the collection. Defaults to the latest release")
	return version
}

func addManifestsDirFlag(cmd *cobra.Command) string {
	manifests := "manifests"
	cmd.Flags().StringVar(&registryFlags.update.manifests, manifests, "",
		"A local directory holding collection manifests, named after each collection. Overrides manifest.dir from the configuration")
	return manifests
}

func addViewsDirFlag(cmd *cobra.Command) string {
	dir := "dir"
	cmd.Flags().StringVar(&registryFlags.views.dir, dir, "views", "The directory holding the aggregate views")
	return dir
}

func addRootDirFlag(cmd *cobra.Command) string {
	root := "root"
	cmd.Flags().StringVar(&registryFlags.views.root, root, ".", "The root of a checkout of the registry")
	return root
}

func addCapabilityFlag(cmd *cobra.Command) string {
	capability := "capability"
	cmd.Flags().StringSliceVar(&registryFlags.views.capabilities, capability, nil, "A block capability to look for. May be repeated")
	return capability
}

func addViewPathFlag(cmd *cobra.Command) string {
	view := "view"
	cmd.Flags().StringVar(&registryFlags.sync.view, view, "",
		"The path of the view in the registry. Defaults to sync.view_path from the configuration")
	return view
}

func addTargetRepoFlag(cmd *cobra.Command) string {
	targetRepo := "target-repo"
	cmd.Flags().StringVar(&registryFlags.sync.targetRepo, targetRepo, "",
		"The repository receiving the view, as owner/name. Defaults to sync.target_repo from the configuration")
	return targetRepo
}

func addTargetPathFlag(cmd *cobra.Command) string {
	targetPath := "target-path"
	cmd.Flags().StringVar(&registryFlags.sync.targetPath, targetPath, "",
		"The path of the view in the target repository. Defaults to sync.target_path from the configuration")
	return targetPath
}

func addTargetBaseFlag(cmd *cobra.Command) string {
	targetBase := "target-base"
	cmd.Flags().StringVar(&registryFlags.sync.targetBase, targetBase, model.TrunkBranch,
		"The branch of the target repository the pull request is proposed to")
	return targetBase
}
