package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version  = "0.3.0"
	cfgFile  string
	procName string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "lspmon",
	Short: "Language server process monitor",
	Long:  `lspmon finds the authoritative language server process among same-named candidates, samples its memory, CPU, and liveness, and can kill and restart it on request.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring and serve the control endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		runMonitor()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "One-shot detection and sample of the target process",
	Run: func(cmd *cobra.Command, args []string) {
		showStatus()
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Kill the target processes and re-detect after restart",
	Run: func(cmd *cobra.Command, args []string) {
		forceRestart()
	},
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Emit a process-tree diagnostics report",
	Run: func(cmd *cobra.Command, args []string) {
		showDiagnostics()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lspmon v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user-config-dir>/lspmon/lspmon.yaml)")
	rootCmd.PersistentFlags().StringVar(&procName, "process", "", "target process name (overrides config)")

	statusCmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable JSON")
	diagCmd.Flags().StringVar(&diagFormat, "format", "json", "output format: json or yaml")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
