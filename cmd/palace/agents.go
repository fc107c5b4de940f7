package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var invitePermissions string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage guest agent credentials",
}

var agentsInviteCmd = &cobra.Command{
	Use:   "invite <agent_name>",
	Short: "Issue a guest key for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsInvite,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agent credentials, active and revoked",
	RunE:  runAgentsList,
}

var agentsRevokeCmd = &cobra.Command{
	Use:   "revoke <agent_name>",
	Short: "Revoke an agent's active guest key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsRevoke,
}

func init() {
	agentsInviteCmd.Flags().StringVar(&invitePermissions, "permissions", "read", "read, write or admin")
	agentsCmd.AddCommand(agentsInviteCmd)
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsRevokeCmd)
	rootCmd.AddCommand(agentsCmd)
}

type remoteAgent struct {
	Name        string     `json:"agent_name"`
	GuestKey    string     `json:"guest_key"`
	Permissions string     `json:"permissions"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}

func runAgentsInvite(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	var resp struct {
		Agent remoteAgent `json:"agent"`
	}
	err = apiCall(conf, http.MethodPost, "/api/palace/agents", map[string]string{
		"agent_name":  args[0],
		"permissions": invitePermissions,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Println("Agent invited:", resp.Agent.Name)
	fmt.Println("Guest key:    ", resp.Agent.GuestKey)
	fmt.Println("Permissions:  ", resp.Agent.Permissions)
	fmt.Println("Share the guest key with the agent. It cannot be recovered later.")
	return nil
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	var resp struct {
		Agents []remoteAgent `json:"agents"`
	}
	if err := apiCall(conf, http.MethodGet, "/api/palace/agents", nil, &resp); err != nil {
		return err
	}

	if len(resp.Agents) == 0 {
		fmt.Println("No agents invited yet.")
		return nil
	}
	for _, agent := range resp.Agents {
		state := "active"
		if !agent.Active {
			state = "revoked"
		}
		fmt.Printf("%-20s %-7s %-7s invited %s\n",
			agent.Name, agent.Permissions, state, agent.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runAgentsRevoke(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	err = apiCall(conf, http.MethodDelete, "/api/palace/agents", map[string]string{
		"agent_name": args[0],
	}, nil)
	if err != nil {
		return err
	}

	fmt.Println("Agent revoked:", args[0])
	return nil
}
