package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	miscModel "github.com/babelcloud/gbox/packages/visual-test/internal/misc/model"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// NewStatusCommand queries a running server for its version and browser state
func NewStatusCommand(load configLoader) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = os.Getenv("VISUAL_TEST_SERVER")
			}
			if server == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				server = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			}
			base := strings.TrimRight(server, "/") + "/visual-test"
			client := &http.Client{Timeout: 10 * time.Second}

			var version miscModel.VersionInfo
			if err := getJSON(client, base+"/version", &version); err != nil {
				return err
			}
			var browser model.BrowserStatus
			if err := getJSON(client, base+"/browser", &browser); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:   %s (%s, %s/%s)\n", version.Version, version.GitCommit, version.OS, version.Arch)
			fmt.Fprintf(out, "OS tag:   %s\n", version.OSTag)
			fmt.Fprintf(out, "Driver:   %s\n", browser.Driver)
			fmt.Fprintf(out, "Browser:  %s, %d open pages, %d launches\n", browser.State, browser.Pages, browser.Launches)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Server base URL (default $VISUAL_TEST_SERVER or localhost)")
	return cmd
}

func getJSON(client *http.Client, url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API call failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
