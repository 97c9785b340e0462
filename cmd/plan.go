package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/batchfetch/internal/output"
	"github.com/tanq16/batchfetch/internal/scheduler"
	"github.com/tanq16/batchfetch/internal/utils"
)

func newPlanCmd() *cobra.Command {
	var listFile string

	cmd := &cobra.Command{
		Use:   "plan [URL...] [--list LIST_FILE]",
		Short: "Show what would be created, resumed or skipped without downloading",
		Run: func(cmd *cobra.Command, args []string) {
			urls := args
			if listFile != "" {
				listed, err := utils.ReadURLList(listFile)
				if err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				urls = append(urls, listed...)
			}
			if len(urls) == 0 {
				output.PrintError("No URL or URL list provided")
				os.Exit(1)
			}
			runner := &scheduler.Runner{Sources: newRegistry(appConfig)}
			failed := false
			for _, result := range runner.Plan(cmd.Context(), urls, appConfig.Output) {
				if result.Err != nil {
					failed = true
					fmt.Println("  " + output.FError(fmt.Sprintf("%s: %v", result.Target.URL, result.Err)))
					continue
				}
				fmt.Println("  " + formatPlan(result))
			}
			if failed {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&listFile, "list", "l", "", "Path to a text or YAML URL list")
	return cmd
}

func formatPlan(result scheduler.PlanResult) string {
	d := result.Decision
	name := result.Target.Name()
	remote := utils.FormatBytes(uint64(d.RemoteSize))
	switch d.Action {
	case utils.ActionSkip:
		return output.FInfo(fmt.Sprintf("skip      %s (%s, complete)", name, remote))
	case utils.ActionAppend:
		return output.FPending(fmt.Sprintf("resume    %s (%s of %s)", name, utils.FormatBytes(uint64(d.Offset)), remote))
	case utils.ActionOverwrite:
		return output.FWarning(fmt.Sprintf("overwrite %s (empty local file, %s)", name, remote))
	default:
		return output.FPending(fmt.Sprintf("create    %s (%s)", name, remote))
	}
}
