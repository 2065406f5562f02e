package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// Preset is a well-known MCP server that can be added by name.
type Preset struct {
	Name        string
	Description string
	Command     string
	Args        []string
	Category    string
}

// Presets lists the built-in server definitions.
var Presets = []Preset{
	{
		Name:        "filesystem",
		Description: "Read, write and search local files",
		Command:     "npx",
		Args:        []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
		Category:    "Essential",
	},
	{
		Name:        "memory",
		Description: "Knowledge graph memory across sessions",
		Command:     "npx",
		Args:        []string{"-y", "@modelcontextprotocol/server-memory"},
		Category:    "Essential",
	},
	{
		Name:        "fetch",
		Description: "Fetch URLs and convert pages to markdown",
		Command:     "uvx",
		Args:        []string{"mcp-server-fetch"},
		Category:    "Web",
	},
	{
		Name:        "chrome-devtools",
		Description: "Drive a Chrome instance through DevTools",
		Command:     "npx",
		Args:        []string{"-y", "chrome-devtools-mcp@latest"},
		Category:    "Web",
	},
	{
		Name:        "git",
		Description: "Inspect and edit git repositories",
		Command:     "uvx",
		Args:        []string{"mcp-server-git"},
		Category:    "Developer",
	},
	{
		Name:        "github",
		Description: "GitHub issues, pull requests and code search",
		Command:     "npx",
		Args:        []string{"-y", "@modelcontextprotocol/server-github"},
		Category:    "Developer",
	},
}

var PresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in MCP server definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, category := range presetCategories() {
			fmt.Println(titleStyle.Render(category))
			for _, p := range Presets {
				if p.Category != category {
					continue
				}
				fmt.Println("  " + row(p.Name, p.Description))
				fmt.Println("  " + row("", mutedStyle.Render(p.Command+" "+strings.Join(p.Args, " "))))
			}
			fmt.Println()
		}
		return nil
	},
}

func presetByName(name string) *Preset {
	for i := range Presets {
		if Presets[i].Name == name {
			return &Presets[i]
		}
	}
	return nil
}

// presetCategories returns the categories in the order they first appear.
func presetCategories() []string {
	seen := make(map[string]int)
	for i, p := range Presets {
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = i
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return seen[categories[i]] < seen[categories[j]] })
	return categories
}
