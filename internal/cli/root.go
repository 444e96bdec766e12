package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Global flag values shared across all commands.
var (
	flagJSON     bool
	flagQuiet    bool
	flagVerbose  bool
	flagAuditLog string

	azureAccountName      string
	azureConnectionString string
)

// NewRootCmd creates the top-level cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "depotmanifestgen",
		Short:   "Download depot manifests and decryption keys from Steam",
		Long:    "DepotManifestGen logs into a Steam account, enumerates owned titles, and saves every depot manifest plus its decryption key to disk.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Configure zerolog level based on --verbose / --quiet.
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if flagVerbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			if flagQuiet {
				zerolog.SetGlobalLevel(zerolog.ErrorLevel)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to every subcommand.
	pf := root.PersistentFlags()
	pf.BoolVar(&flagJSON, "json", false, "output results as JSON")
	pf.BoolVar(&flagQuiet, "quiet", false, "minimal output (errors only)")
	pf.BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	// Azure Blob Storage flags (used by --mirror).
	pf.StringVar(&azureAccountName, "azure-account", "", "Azure storage account name (or AZURE_STORAGE_ACCOUNT env)")
	pf.StringVar(&azureConnectionString, "azure-connection-string", "", "Azure storage connection string (or AZURE_STORAGE_CONNECTION_STRING env)")

	// Audit trail.
	pf.StringVar(&flagAuditLog, "audit-log", "", "Append-only audit log file (or DMG_AUDIT_LOG env)")

	// Register subcommands.
	root.AddCommand(newGrabCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newAccountsCmd())

	return root
}

// Execute runs the root command, reports any failure on stderr, and
// exits with the mapped code.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		NewPrinter(flagJSON, flagQuiet).Error(err, "command failed")
		os.Exit(util.ExitCodeForError(err))
	}
}

// resolveAzureEnv fills empty Azure config values from environment variables.
func resolveAzureEnv() {
	if azureAccountName == "" {
		azureAccountName = os.Getenv("AZURE_STORAGE_ACCOUNT")
	}
	if azureConnectionString == "" {
		azureConnectionString = os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	}
}
