package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/oneconcern/collection-registry/pkg/model"
)

const formatFlag = "format"

// Formatter renders the result of a command
type Formatter interface {
	Format(io.Writer, interface{}) error
}

// FormatterFunc turns a function into a Formatter
type FormatterFunc func(io.Writer, interface{}) error

// Format the data
func (f FormatterFunc) Format(w io.Writer, data interface{}) error {
	return f(w, data)
}

var (
	formatters = make(map[*cobra.Command]map[string]Formatter)

	// output of formatted results, patched in tests
	out io.Writer = os.Stdout
)

func jsonFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		b, err := model.MarshalDocument(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
}

func yamlFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		b, err := model.MarshalCompact(data)
		if err != nil {
			return err
		}
		y, err := yaml.JSONToYAML(b)
		if err != nil {
			return err
		}
		_, err = w.Write(y)
		return err
	}
}

// addFormatFlag registers the output formats of a command. json and yaml are always available.
func addFormatFlag(cmd *cobra.Command, defaultFormat string, custom map[string]Formatter) string {
	available := map[string]Formatter{
		"json": jsonFormatter(),
		"yaml": yamlFormatter(),
	}
	for k, v := range custom {
		available[k] = v
	}
	formatters[cmd] = available

	names := make([]string, 0, len(available))
	for k := range available {
		names = append(names, k)
	}
	sort.Strings(names)
	cmd.Flags().String(formatFlag, defaultFormat, "The output format: "+strings.Join(names, ", "))
	return formatFlag
}

func print(cmd *cobra.Command, data interface{}) error {
	format, err := cmd.Flags().GetString(formatFlag)
	if err != nil {
		return err
	}
	formatter, ok := formatters[cmd][format]
	if !ok {
		return fmt.Errorf("unsupported output format %q", format)
	}
	return formatter.Format(out, data)
}
