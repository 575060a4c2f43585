package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"

	corestatus "github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

// patched in tests
var (
	logFatalln = log.Fatalln
	logFatalf  = log.Fatalf
	osExit     = os.Exit

	// infoLogger reports progress on stdout, apart from formatted results
	infoLogger = log.New(os.Stdout, "", 0)

	errOut io.Writer = os.Stderr
)

// hints point at the usual remedy for a failure
var hints = []struct {
	kind error
	hint string
}{
	{storagestatus.ErrUnauthorized, "set github.token in the configuration, or GITHUB_TOKEN"},
	{storagestatus.ErrForbidden, "the token may lack access to the repository, or the API rate limit is exhausted"},
	{corestatus.ErrRetryExhausted, "the aggregate view kept changing under this submission: submit again"},
	{corestatus.ErrNoManifest, "pass --manifests, or set manifest.dir"},
}

func hintFor(err error) string {
	for _, h := range hints {
		if errors.Is(err, h.kind) {
			return h.hint
		}
	}
	return ""
}

// wrapFatalln exits after reporting msg, and err when set
func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
		return
	}
	if hint := hintFor(err); hint != "" {
		logFatalf("%s: %v\n(%s)", msg, err, hint)
		return
	}
	logFatalf("%s: %v", msg, err)
}

// wrapFatalWithCodef exits with a specific code, e.g. when only part of the work failed
func wrapFatalWithCodef(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintln(errOut, color.RedString(format, args...))
	osExit(code)
}
