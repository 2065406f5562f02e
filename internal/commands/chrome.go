package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/chrome"
)

var (
	chromeProfile string
	chromeJSON    bool
	showPasswords bool
)

// ChromeCmd groups the Chrome data extraction commands.
var ChromeCmd = &cobra.Command{
	Use:   "chrome",
	Short: "Read passwords, bookmarks and history from a local Chrome installation",
}

var chromeProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List Chrome profiles",
	RunE:  runChromeProfiles,
}

var chromeExtractCmd = &cobra.Command{
	Use:       "extract [passwords|bookmarks|history|all]",
	Short:     "Extract data from a Chrome profile",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"passwords", "bookmarks", "history", "all"},
	RunE:      runChromeExtract,
}

var chromeImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a profile's passwords into the encrypted Vibe profile store",
	RunE:  runChromeImport,
}

func init() {
	ChromeCmd.PersistentFlags().StringVarP(&chromeProfile, "profile", "p", "", "Profile directory or display name (default profile if empty)")
	chromeExtractCmd.Flags().BoolVar(&chromeJSON, "json", false, "Print the raw result as JSON")
	chromeExtractCmd.Flags().BoolVar(&showPasswords, "show-passwords", false, "Print passwords in clear text")

	ChromeCmd.AddCommand(chromeProfilesCmd)
	ChromeCmd.AddCommand(chromeExtractCmd)
	ChromeCmd.AddCommand(chromeImportCmd)
}

func runChromeProfiles(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	svc := a.chromeService()

	profiles, err := svc.Profiles()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Chrome profiles") + " " + mutedStyle.Render(svc.UserDataDir()))
	for _, p := range profiles {
		name := p.Name
		if p.IsDefault {
			name += " " + successStyle.Render("(default)")
		}
		fmt.Println(row(p.Dir(), name))
	}
	return nil
}

func runChromeExtract(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	svc := a.chromeService()

	profile, err := svc.ResolveProfile(chromeProfile)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var result interface{}
	var ok bool
	var errMsg string
	switch args[0] {
	case "passwords":
		r := svc.ExtractPasswords(ctx, profile)
		if !showPasswords {
			r.Data = redactPasswords(r.Data)
		}
		result, ok, errMsg = r, r.Success, r.Error
	case "bookmarks":
		r := svc.ExtractBookmarks(ctx, profile)
		result, ok, errMsg = r, r.Success, r.Error
	case "history":
		r := svc.ExtractHistory(ctx, profile)
		result, ok, errMsg = r, r.Success, r.Error
	case "all":
		r := svc.ExtractAll(ctx, profile)
		if !showPasswords {
			r.Data.Passwords = redactPasswords(r.Data.Passwords)
		}
		result, ok, errMsg = r, r.Success, r.Error
	}

	if chromeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if !ok {
		return fmt.Errorf("%s extraction failed: %s", args[0], errMsg)
	}
	printExtraction(args[0], profile, result)
	return nil
}

func printExtraction(kind string, profile chrome.Profile, result interface{}) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s: %s", profile.Name, kind)))

	switch r := result.(type) {
	case chrome.Result[[]chrome.PasswordRecord]:
		printPasswords(r.Data)
	case chrome.Result[[]chrome.Bookmark]:
		printBookmarks(r.Data)
	case chrome.Result[[]chrome.HistoryEntry]:
		printHistory(r.Data)
	case chrome.Result[chrome.AllData]:
		fmt.Println(row("Passwords", fmt.Sprint(len(r.Data.Passwords))))
		fmt.Println(row("Bookmarks", fmt.Sprint(len(r.Data.Bookmarks))))
		fmt.Println(row("History", fmt.Sprint(len(r.Data.History))))
		for _, w := range r.Data.Warnings {
			fmt.Println(warningStyle.Render("warning: " + w))
		}
	}
}

func printPasswords(records []chrome.PasswordRecord) {
	for _, r := range records {
		fmt.Printf("%s  %s  %s\n", r.URL, r.Username, mutedStyle.Render(r.Password))
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d logins", len(records))))
}

func printBookmarks(bookmarks []chrome.Bookmark) {
	for _, b := range bookmarks {
		fmt.Printf("%s  %s  %s\n", mutedStyle.Render(b.Folder), b.Name, b.URL)
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d bookmarks", len(bookmarks))))
}

func printHistory(entries []chrome.HistoryEntry) {
	for _, h := range entries {
		fmt.Printf("%s  %3d  %s\n", mutedStyle.Render(h.LastVisit.Local().Format(time.DateTime)), h.VisitCount, h.URL)
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d entries", len(entries))))
}

// redactPasswords returns a copy with every password masked.
func redactPasswords(records []chrome.PasswordRecord) []chrome.PasswordRecord {
	if records == nil {
		return nil
	}
	out := make([]chrome.PasswordRecord, len(records))
	for i, r := range records {
		r.Password = redact(r.Password)
		out[i] = r
	}
	return out
}

func runChromeImport(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	svc := a.chromeService()

	profile, err := svc.ResolveProfile(chromeProfile)
	if err != nil {
		return err
	}

	result := svc.ExtractPasswords(cmd.Context(), profile)
	if !result.Success {
		return fmt.Errorf("password extraction failed: %s", result.Error)
	}

	store, err := a.openProfileStore()
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.SavePasswords(cmd.Context(), profile.Dir(), result.Data)
	if err != nil {
		return err
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("Imported %d of %d logins from %s", saved, len(result.Data), profile.Name)))
	return nil
}
