package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var membersAPIAddr string

func init() {
	membersCmd.Flags().StringVar(&membersAPIAddr, "api", "http://127.0.0.1:8080", "base URL of a running node's API")
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the cluster members known to a running node",
	RunE:  runMembers,
}

func runMembers(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(membersAPIAddr + "/members/")
	if err != nil {
		return fmt.Errorf("members: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("members: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("members: %s returned %d: %s", membersAPIAddr, resp.StatusCode, body)
	}

	var views []map[string]interface{}
	if err := json.Unmarshal(body, &views); err != nil {
		return fmt.Errorf("members: decode response: %w", err)
	}

	fmt.Fprintf(os.Stdout, "%-20s %-24s %-10s %s\n", "ID", "ADDRESS", "STATE", "TERM")
	for _, v := range views {
		fmt.Fprintf(os.Stdout, "%-20v %-24v %-10v %v\n", v["id"], v["address"], v["state"], v["term"])
	}
	return nil
}
