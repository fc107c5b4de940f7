package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuer-ai/memory-palace/pkg/keys"
)

var initName string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new palace and its local signing keypair",
	Long: `Generate a fresh Ed25519 keypair, register a new palace with the
public key, and write the credentials to the local config file.

The private key is written only to the local config file. Losing it
makes every sealed memory in the palace unrecoverable.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "palace name")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	keypair, err := keys.Generate()
	if err != nil {
		return err
	}

	conf := cliConfig{APIBase: apiBase}
	if conf.APIBase == "" {
		conf.APIBase = defaultAPIBase
	}

	var resp struct {
		PalaceID string `json:"palace_id"`
	}
	err = apiCall(conf, http.MethodPost, "/api/palace", map[string]string{
		"name":       initName,
		"public_key": keypair.PublicKey,
	}, &resp)
	if err != nil {
		return err
	}

	conf.PalaceID = resp.PalaceID
	conf.PalaceKey = keypair.PalaceKey
	conf.PublicKey = keypair.PublicKey
	if err := saveConfig(conf); err != nil {
		return err
	}

	path, _ := configPath()
	fmt.Println("Palace created:", resp.PalaceID)
	fmt.Println("Credentials written to", path)
	fmt.Println("Keep palace_key private. Without it, sealed memories cannot be decrypted.")
	return nil
}
