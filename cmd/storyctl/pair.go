package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/storylineapp/storyline-core/internal/domain"
)

var pairingsCmd = &cobra.Command{
	Use:   "pairings",
	Short: "List paired devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var list struct {
			Pairings []struct {
				ID         string    `json:"id"`
				DeviceName string    `json:"device_name"`
				CreatedAt  time.Time `json:"created_at"`
				LastSeenAt time.Time `json:"last_seen_at"`
			} `json:"pairings"`
		}
		if err := c.get("/api/v1/pairings", &list); err != nil {
			return err
		}
		if len(list.Pairings) == 0 {
			fmt.Println("no paired devices")
			return nil
		}
		for _, p := range list.Pairings {
			fmt.Printf("%-28s  %-20s  last seen %s\n",
				p.ID, p.DeviceName, p.LastSeenAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [pairing-id]",
	Short: "Revoke a paired device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.do(http.MethodDelete, "/api/v1/pairings/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("revoked")
		return nil
	},
}

var (
	discoverTimeout int

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for media servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var found struct {
				Servers []domain.ServerInfo `json:"servers"`
			}
			path := fmt.Sprintf("/api/v1/servers/discover?timeout=%d", discoverTimeout)
			if err := c.get(path, &found); err != nil {
				return err
			}
			if len(found.Servers) == 0 {
				fmt.Println("no media servers found")
				return nil
			}
			for _, srv := range found.Servers {
				fmt.Printf("%-20s  %s\n", srv.Name, srv.RemoteURL())
			}
			return nil
		},
	}
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show daemon identity and connection state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var info struct {
			InstanceID string                  `json:"instance_id"`
			Name       string                  `json:"name"`
			Version    string                  `json:"version"`
			APIVersion string                  `json:"api_version"`
			Connection domain.ConnectionStatus `json:"connection"`
		}
		if err := c.get("/api/v1/instance", &info); err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", info.Name, info.InstanceID)
		fmt.Printf("  version %s, api %s\n", info.Version, info.APIVersion)
		fmt.Printf("  media server: %s\n", info.Connection)
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 3, "browse duration in seconds")

	rootCmd.AddCommand(pairingsCmd, revokeCmd, discoverCmd, infoCmd)
}
