package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/output"
)

var extended bool

// versionReport is the --extended JSON form.
type versionReport struct {
	Binary    string `json:"binary"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Go        string `json:"go"`
	Gofulmen  string `json:"gofulmen"`
	Crucible  string `json:"crucible"`
	Routes    int    `json:"builtin_routes"`
}

func (v versionReport) text() string {
	return fmt.Sprintf("%s %s\nCommit: %s\nBuilt: %s\nGo: %s\n\nGofulmen: %s\nCrucible: %s\nBuilt-in routes: %d",
		v.Binary, v.Version, v.Commit, v.BuildDate, v.Go, v.Gofulmen, v.Crucible, v.Routes)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for Crucible, Go and catalog details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		if !extended {
			fmt.Printf("%s %s\n", identity.BinaryName, versionInfo.Version)
			return nil
		}

		format, sink, err := openOutput(cmd, "version")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		fulmen := crucible.GetVersion()
		report := versionReport{
			Binary:    identity.BinaryName,
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
			Go:        runtime.Version(),
			Gofulmen:  fulmen.Gofulmen,
			Crucible:  fulmen.Crucible,
			Routes:    len(route.DefaultCatalog().Routes()),
		}
		rendered, err := output.Render(format, report, report.text)
		if err != nil {
			return err
		}
		return sink.write(rendered)
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	addOutputFlags(versionCmd)
	rootCmd.AddCommand(versionCmd)
}
