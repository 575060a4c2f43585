// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/metadata"
	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/schema"
	"github.com/oneconcern/collection-registry/pkg/storage"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print the metadata generated for a collection release",
	Long: `Generate the metadata of a collection release and print it, without writing to the registry.

Metadata is generated from the manifest published by the collection, or from a local manifest file.
All varieties are printed, keyed by their plural name, unless one is selected with --variety.
`,
	Example: `registry generate --manifest registry.yaml --version v1.0.0 --variety block
registry generate --collection prefect-aws --format yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := initContext()

		if (registryFlags.submit.collection == "") == (registryFlags.generate.manifest == "") {
			wrapFatalln("exactly one of --collection or --manifest is required", nil)
			return
		}
		varieties := model.Varieties()
		if registryFlags.submit.variety != "" {
			variety, err := model.ParseVariety(registryFlags.submit.variety)
			if err != nil {
				wrapFatalln("invalid variety", err)
				return
			}
			varieties = []model.Variety{variety}
		}
		if err := loadedConfig(); err != nil {
			wrapFatalln("failed to initialize", err)
			return
		}

		var (
			manifest *metadata.Manifest
			remote   storage.Remote
			err      error
		)
		collection := registryFlags.submit.collection
		if registryFlags.generate.manifest != "" {
			manifest, err = readManifest(registryFlags.generate.manifest)
			if err != nil {
				wrapFatalln("failed to read manifest", err)
				return
			}
			collection = manifest.Collection
		}

		version := registryFlags.generate.version
		if version == "" || manifest == nil {
			if remote, err = newRemote(); err != nil {
				wrapFatalln("failed to initialize remote", err)
				return
			}
		}
		if version == "" {
			repo := storage.Repository{Owner: registryConfig.Collections.Owner, Name: collection}
			if version, err = remote.LatestRelease(ctx, repo); err != nil {
				wrapFatalln(fmt.Sprintf("failed to resolve the latest release of %s", collection), err)
				return
			}
		}
		version = model.NormalizeVersion(version)
		if manifest == nil {
			manifest, err = manifestSource(remote).Manifest(ctx, collection, version)
			if err != nil {
				wrapFatalln("failed to load manifest", err)
				return
			}
		}

		validator, err := schema.Default()
		if err != nil {
			wrapFatalln("failed to load schemas", err)
			return
		}
		generator := metadata.NewGenerator(validator,
			metadata.Owner(registryConfig.Collections.Owner),
			metadata.Logger(logger),
		)
		records := make(map[string]model.Record, len(varieties))
		for _, variety := range varieties {
			record, err := generator.Generate(manifest, variety, version)
			if err != nil {
				wrapFatalln(fmt.Sprintf("failed to generate %s metadata", variety), err)
				return
			}
			records[variety.Plural()] = record
		}

		var result interface{} = records
		if len(varieties) == 1 {
			result = records[varieties[0].Plural()]
		}
		if err = print(cmd, result); err != nil {
			wrapFatalln("failed to print metadata", err)
		}
	},
}

func readManifest(file string) (*metadata.Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return metadata.ParseManifest(data)
}

func init() {
	addCollectionFlag(generateCmd)
	addManifestFileFlag(generateCmd)
	addVarietyFlag(generateCmd)
	addVersionFlag(generateCmd)
	addManifestsDirFlag(generateCmd)
	addFormatFlag(generateCmd, "json", nil)

	rootCmd.AddCommand(generateCmd)
}
