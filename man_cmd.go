package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err //nolint:wrapcheck
		}

		manPage = manPage.WithSection("Files", "Configuration is read from tartil.yml in the user config directory; TARTIL_CONFIG_HOME overrides it.\n"+
			"The log is written to tartil.log in the user cache directory.")
		manPage = manPage.WithSection("Environment", "TARTIL_DEBUG enables debug logging. Every configuration key can be set as TARTIL_<KEY>.")
		fmt.Println(manPage.Build(roff.NewDocument()))
		return nil
	},
}
