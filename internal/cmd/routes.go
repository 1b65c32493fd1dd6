package cmd

import (
	"github.com/spf13/cobra"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/output"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the route catalog",
	Long:  "List built-in routes plus any added through dispatch.routes_file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		format, sink, err := openOutput(cmd, "routes")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		routes := catalog.Routes()
		rendered, err := output.Render(format, routes, func() string { return output.RoutesTable(routes) })
		if err != nil {
			return err
		}
		return sink.write(rendered)
	},
}

func init() {
	addOutputFlags(routesCmd)
	rootCmd.AddCommand(routesCmd)
}
