// Package cli implements the admitctl command line tool: a scanner-side
// companion for admitd. It can log in as the operator, bootstrap a scanner
// against a server, present ticket credentials at the check-in endpoint, and
// inspect tokens offline.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var warnLabel = color.New(color.FgYellow)
var errorLabel = color.New(color.FgRed)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "admitctl [command] [flags]",
	Short: "admitctl - scanner companion CLI for the admitd admission service",
	Long: `admitctl talks to an admitd server. It registers this machine as a
checkpoint scanner, presents ticket credentials for check-in, and inspects
tokens without contacting the server.

Examples:
  # Log in as the operator
  admitctl login --passwd=secret

  # Register this machine as a scanner using a bootstrap code
  admitctl register --token XXXXXXXX-XXXXXXXX --name "front gate"

  # Present a ticket credential
  admitctl scan --token eyJhbGciOi...

  # Decode a token locally (no signature check)
  admitctl inspect eyJhbGciOi...`,
	PersistentPreRun: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newInspectCmd())
}

// Execute runs the root command. Called once from main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// preRunHandlePersistents loads configuration before command execution.
// Commands that work offline skip the config requirement.
func preRunHandlePersistents(cmd *cobra.Command, args []string) {
	if configFile == "" {
		var err error
		configFile, err = GetDefaultConfigPath()
		if err != nil {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	offline := false
	c := cmd
	for c != nil {
		if c.Name() == "version" || c.Name() == "inspect" {
			offline = true
			break
		}
		c = c.Parent()
	}

	if !offline {
		if err := LoadConfig(configFile); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("admitctl config file not found. Create one with at least server_url set.")
				os.Exit(1)
			}
			fmt.Printf("%s\n", err.Error())
			os.Exit(1)
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of admitctl",
		Run: func(cmd *cobra.Command, args []string) {
			configPath, err := GetDefaultConfigPath()
			if err != nil {
				configPath = "unknown"
			}
			if jsonOutput {
				printJSON(map[string]string{
					"version":     getCLIVersion(),
					"api_version": admitcommon.ApiVersion,
					"config_file": configPath,
				})
			} else {
				cmd.Printf("admitctl %s (API %s)\n", getCLIVersion(), admitcommon.ApiVersion)
				cmd.Printf("Config file: %s\n", configPath)
			}
		},
	}
}

// printJSON prints the given value as indented JSON to stdout.
func printJSON(data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}

func getCLIVersion() string {
	return "v" + admitcommon.ServerVersion
}
