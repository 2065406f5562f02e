package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	passwordsProfile string
	passwordsJSON    bool
	passwordsShow    bool
)

// PasswordsCmd reads the encrypted Vibe profile store.
var PasswordsCmd = &cobra.Command{
	Use:   "passwords",
	Short: "Inspect credentials imported into the Vibe profile store",
}

var passwordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials for a profile",
	RunE:  runPasswordsList,
}

func init() {
	passwordsListCmd.Flags().StringVarP(&passwordsProfile, "profile", "p", "Default", "Profile directory the credentials were imported from")
	passwordsListCmd.Flags().BoolVar(&passwordsJSON, "json", false, "Print as JSON")
	passwordsListCmd.Flags().BoolVar(&passwordsShow, "show-passwords", false, "Print passwords in clear text")
	PasswordsCmd.AddCommand(passwordsListCmd)
}

func runPasswordsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	store, err := a.openProfileStore()
	if err != nil {
		return err
	}
	defer store.Close()

	creds, err := store.ListPasswords(cmd.Context(), passwordsProfile)
	if err != nil {
		return err
	}
	if !passwordsShow {
		for i := range creds {
			creds[i].Password = redact(creds[i].Password)
		}
	}

	if passwordsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(creds)
	}

	fmt.Println(titleStyle.Render("Stored credentials: " + passwordsProfile))
	for _, c := range creds {
		fmt.Printf("%s  %s  %s\n", c.URL, c.Username, mutedStyle.Render(c.Password))
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d credentials", len(creds))))
	return nil
}
