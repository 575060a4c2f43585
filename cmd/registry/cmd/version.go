package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags -X. When absent, the VCS stamp of the binary is used.
var (
	Version   string
	BuildDate string
	GitCommit string
	GitState  string
)

const devVersion = "dev"

// VersionInfo describes the build of the registry binary
type VersionInfo struct {
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	GitState  string `json:"gitState,omitempty"`
}

// NewVersionInfo collects the build information
func NewVersionInfo() VersionInfo {
	ver := VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GitState:  GitState,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		ver.fromBuildInfo(info)
	}
	if ver.Version == "" {
		ver.Version = devVersion
	}
	return ver
}

// fromBuildInfo completes what ldflags left unset
func (v *VersionInfo) fromBuildInfo(info *debug.BuildInfo) {
	v.GoVersion = info.GoVersion
	if v.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "" {
				v.GitCommit = s.Value
			}
		case "vcs.time":
			if v.BuildDate == "" {
				v.BuildDate = s.Value
			}
		case "vcs.modified":
			if v.GitState == "" {
				v.GitState = map[string]string{"true": "dirty", "false": "clean"}[s.Value]
			}
		}
	}
}

func (v VersionInfo) String() string {
	orUnknown := func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	}
	return fmt.Sprintf("Version: %s\nGo: %s\nBuild date: %s\nCommit: %s\nWorking tree: %s\n",
		v.Version, orUnknown(v.GoVersion), orUnknown(v.BuildDate), orUnknown(v.GitCommit), orUnknown(v.GitState))
}

func versionFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		v, ok := data.(VersionInfo)
		if !ok {
			return fmt.Errorf("unexpected version data %T", data)
		}
		if v.GitState == "dirty" {
			v.GitState = color.YellowString(v.GitState)
		}
		_, err := io.WriteString(w, v.String())
		return err
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the version of registry",
	Long: `Prints the version of registry: its release tag, the Go toolchain it was built with,
and the commit and state of the working tree it was built from.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := print(cmd, NewVersionInfo()); err != nil {
			wrapFatalln("failed to print version", err)
		}
	},
}

func init() {
	addFormatFlag(versionCmd, "text", map[string]Formatter{"text": versionFormatter()})
	rootCmd.AddCommand(versionCmd)
}
