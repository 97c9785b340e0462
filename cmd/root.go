package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/batchfetch/internal/config"
	"github.com/tanq16/batchfetch/internal/output"
	"github.com/tanq16/batchfetch/internal/utils"
)

var (
	cfgFile   string
	appConfig *config.Config
)

var BatchfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "batchfetch [URL...]",
	Short:   "batchfetch downloads batches of files, resuming partial ones",
	Version: BatchfetchVersion,
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		appConfig = cfg
		utils.InitLogger(cfg.Debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		if err := runBatches(cmd.Context(), appConfig, args); err != nil {
			fmt.Println()
			output.PrintError("Encountered failed download(s)")
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringP("output", "o", ".", "Destination directory")
	rootCmd.PersistentFlags().IntP("batch-size", "b", utils.DefaultBatchSize, "Number of URLs per batch (batches run one after another)")
	rootCmd.PersistentFlags().IntP("max-parallel", "w", 0, "Cap on concurrent downloads within a batch (0 = no cap)")
	rootCmd.PersistentFlags().DurationP("timeout", "t", 0, "Whole-request timeout, body included (0 = none)")
	rootCmd.PersistentFlags().DurationP("keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for idle connections")
	rootCmd.PersistentFlags().StringP("user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringArrayP("header", "H", []string{}, "Custom headers (like 'Accept: */*'); can be specified multiple times")
	rootCmd.PersistentFlags().StringP("proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().String("proxy-username", "", "Proxy username")
	rootCmd.PersistentFlags().String("proxy-password", "", "Proxy password")
	rootCmd.PersistentFlags().String("s3-profile", "", "AWS shared config profile for s3:// URLs")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "Endpoint URL of an S3-compatible store (path-style addressing)")
	rootCmd.PersistentFlags().Bool("plain", false, "Print one line per event instead of the live display")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newPlanCmd())
}
