package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/detiam/DepotManifestGen/internal/app"
	"github.com/detiam/DepotManifestGen/internal/audit"
	"github.com/detiam/DepotManifestGen/internal/config"
	"github.com/detiam/DepotManifestGen/internal/credentials"
	"github.com/detiam/DepotManifestGen/internal/mirror"
	"github.com/detiam/DepotManifestGen/internal/steam"
)

func newGrabCmd() *cobra.Command {
	var (
		username       string
		password       string
		loginID        uint32
		credentialFile string
		appIDList      string
		workshopIDList string
		onlyInfo       bool
		sharedInstall  bool
		removeOld      bool
		savePath       string
		apiHost        string
		useHTTP        bool
		useWebsocket   bool
		helperPath     string
		mirrorTarget   string
		configPath     string
		profile        string
	)

	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Log in and save owned depot manifests to disk",
		Long:  "Log into a Steam account (reusing a cached refresh token when possible), enumerate owned titles or take an explicit app/workshop id list, and save every depot manifest plus its decryption key under <save-path>/depots/<appid>/.",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(flagJSON, flagQuiet)
			log := printer.Logger

			cfg, err := config.Load(configPath, profile)
			if err != nil {
				return err
			}
			// CLI flags layer over the config file.
			if !cmd.Flags().Changed("credential-file") && cfg.CredentialFile != "" {
				credentialFile = cfg.CredentialFile
			}
			if !cmd.Flags().Changed("save-path") && cfg.SavePath != "" {
				savePath = cfg.SavePath
			}
			if !cmd.Flags().Changed("helper") {
				if env := os.Getenv("DMG_HELPER"); env != "" {
					helperPath = env
				} else if cfg.Helper != "" {
					helperPath = cfg.Helper
				}
			}
			if !cmd.Flags().Changed("api-host") && cfg.APIHost != "" {
				apiHost = cfg.APIHost
			}
			if !cmd.Flags().Changed("remove-old") {
				removeOld = cfg.RemoveOld
			}
			if !cmd.Flags().Changed("shared-install") {
				sharedInstall = cfg.SharedInstall
			}
			if !cmd.Flags().Changed("mirror") && cfg.Mirror != "" {
				mirrorTarget = cfg.Mirror
			}
			if flagAuditLog == "" {
				flagAuditLog = cfg.AuditLog
			}
			if flagAuditLog == "" {
				flagAuditLog = os.Getenv("DMG_AUDIT_LOG")
			}

			appIDs, err := parseIDList32(appIDList)
			if err != nil {
				return fmt.Errorf("--app-id: %w", err)
			}
			workshopIDs, err := parseIDList64(workshopIDList)
			if err != nil {
				return fmt.Errorf("--workshop-id: %w", err)
			}

			// Resolve the account before dialing the connector so a
			// cancelled prompt leaves nothing behind.
			creds := credentials.Open(credentialFile)
			if username == "" {
				username, err = chooseUsername(creds)
				if err != nil {
					return err
				}
			}

			auditLog := audit.Logger(audit.Nop{})
			if flagAuditLog != "" {
				fl, err := audit.NewFileLogger(flagAuditLog)
				if err != nil {
					return err
				}
				auditLog = fl
			}

			var uploader app.Uploader
			if mirrorTarget != "" {
				resolveAzureEnv()
				account := azureAccountName
				if account == "" {
					account = cfg.AzureAccount
				}
				m, err := mirror.New(mirror.Options{
					Target:           mirrorTarget,
					AccountName:      account,
					ConnectionString: azureConnectionString,
				})
				if err != nil {
					return err
				}
				uploader = m
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// China endpoints only speak websocket.
			if strings.EqualFold(apiHost, "China") {
				useWebsocket = true
			}
			client, err := steam.StartHelper(ctx, steam.HelperOptions{
				Path:         helperPath,
				APIHost:      apiHost,
				UseWebsocket: useWebsocket,
				UseHTTP:      useHTTP,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			err = app.Run(ctx, client, app.Options{
				Username:       username,
				Password:       password,
				LoginID:        loginID,
				CredentialFile: credentialFile,
				AppIDs:         appIDs,
				WorkshopIDs:    workshopIDs,
				OnlyInfo:       onlyInfo,
				SharedInstall:  sharedInstall,
				RemoveOld:      removeOld,
				SavePath:       savePath,
				PromptPassword: promptPassword,
				InfoLine:       printer.AppLine,
				Audit:          auditLog,
				Mirror:         uploader,
				Log:            log,
			})
			if err != nil {
				return err
			}
			log.Info().Msg("done")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account name (optional when a cached token exists)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (optional when a cached token exists)")
	cmd.Flags().Uint32VarP(&loginID, "login-id", "l", 0, "login id for concurrent sessions from one host")
	cmd.Flags().StringVarP(&credentialFile, "credential-file", "C", "refresh_tokens.json", "file for reading/writing cached refresh tokens")
	cmd.Flags().StringVarP(&appIDList, "app-id", "a", "", "only save manifests for these app ids, e.g. 480,730")
	cmd.Flags().StringVarP(&workshopIDList, "workshop-id", "w", "", "only save these workshop items' manifests, e.g. 3439745927,3440777586")
	cmd.Flags().BoolVarP(&onlyInfo, "only-info", "i", false, "only list owned app info and exit")
	cmd.Flags().BoolVarP(&sharedInstall, "shared-install", "s", false, "also save sharedinstall depot manifests")
	cmd.Flags().BoolVarP(&removeOld, "remove-old", "r", false, "remove superseded manifests after a newer one is written")
	cmd.Flags().StringVarP(&savePath, "save-path", "o", ".", "where to save manifests")
	cmd.Flags().StringVarP(&apiHost, "api-host", "A", "Public", "endpoint group: Public, China, or a custom host")
	cmd.Flags().BoolVar(&useHTTP, "use-http", false, "use plain HTTP transport")
	cmd.Flags().BoolVar(&useWebsocket, "use-websocket", false, "use websocket transport")
	cmd.Flags().StringVar(&helperPath, "helper", "dmg-helper", "path to the connector helper executable (or DMG_HELPER env)")
	cmd.Flags().StringVar(&mirrorTarget, "mirror", "", "mirror written files to az://container/prefix")
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default: "+config.EnvConfigPath+" env, ~/.dmg.yaml, ./.dmg.yaml)")
	cmd.Flags().StringVar(&profile, "profile", "", "config profile to apply (or "+config.EnvProfile+" env)")

	return cmd
}

// parseIDList32 parses a comma-separated uint32 list; empty input is nil.
func parseIDList32(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	seen := make(map[uint32]bool, len(parts))
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad id %q", p)
		}
		if !seen[uint32(v)] {
			seen[uint32(v)] = true
			out = append(out, uint32(v))
		}
	}
	return out, nil
}

// parseIDList64 parses a comma-separated uint64 list; empty input is nil.
func parseIDList64(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	seen := make(map[uint64]bool, len(parts))
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q", p)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}
