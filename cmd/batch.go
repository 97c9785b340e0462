package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/batchfetch/internal/output"
	"github.com/tanq16/batchfetch/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [LIST_FILE]",
		Short: "Download every URL listed in a text or YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			urls, err := utils.ReadURLList(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(urls) == 0 {
				output.PrintError("No URLs found in the list file")
				os.Exit(1)
			}
			if err := runBatches(cmd.Context(), appConfig, urls); err != nil {
				fmt.Println()
				output.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}
}
