package cli

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/detiam/DepotManifestGen/internal/credentials"
)

func newAccountsCmd() *cobra.Command {
	var credentialFile string

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with cached refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(flagJSON, flagQuiet)
			users := credentials.Open(credentialFile).Usernames()

			if printer.Mode == OutputJSON {
				return printer.JSON(map[string]any{"accounts": users})
			}
			if len(users) == 0 {
				printer.Human("No cached accounts in %s", credentialFile)
				return nil
			}
			for _, u := range users {
				printer.Human("%s", u)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&credentialFile, "credential-file", "C", "refresh_tokens.json", "file holding cached refresh tokens")
	return cmd
}

// chooseUsername resolves the account interactively: pick one of the
// cached accounts or type a new name.
func chooseUsername(creds *credentials.Cache) (string, error) {
	const addAccount = "\x00add"

	users := creds.Usernames()
	if len(users) > 0 {
		opts := make([]huh.Option[string], 0, len(users)+1)
		for _, u := range users {
			opts = append(opts, huh.NewOption(u, u))
		}
		opts = append(opts, huh.NewOption("Add another account…", addAccount))

		var choice string
		err := huh.NewSelect[string]().
			Title("Choose an account to log in").
			Options(opts...).
			Value(&choice).
			Run()
		if err != nil {
			return "", err
		}
		if choice != addAccount {
			return choice, nil
		}
	}

	var username string
	err := huh.NewInput().
		Title("Steam user").
		Value(&username).
		Run()
	if err != nil {
		return "", err
	}
	if username == "" {
		return "", fmt.Errorf("no username given")
	}
	return username, nil
}

// promptPassword asks for the account password without echo.
func promptPassword() (string, error) {
	var password string
	err := huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return "", err
	}
	return password, nil
}
