package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuer-ai/memory-palace/pkg/trust"
	"github.com/cuer-ai/memory-palace/pkg/types"
)

var saveImageURL string

var saveCmd = &cobra.Command{
	Use:   "save <payload.json>",
	Short: "Seal a session payload and store it in the palace",
	Long: `Read a session payload, validate it against the strict schema, run
the injection scan, sign and encrypt it with the local palace key, and
store the sealed capsule. The server never sees the plaintext of the
sealed envelope; the payload accompanies the request only for schema
validation and signature verification.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveImageURL, "image-url", "", "image to associate with the memory")
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if conf.PalaceKey == "" {
		return fmt.Errorf("no palace_key in config, run \"palace init\" first")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}

	if result := trust.ValidateAndScan(payload); !result.OK {
		if len(result.Flags) > 0 {
			return fmt.Errorf("payload flagged by injection scan: %s", strings.Join(result.Flags, ", "))
		}
		return fmt.Errorf("invalid payload: %s", result.Errors[0])
	}

	sealed, err := trust.Seal(conf.PalaceKey, conf.PalaceID, raw)
	if err != nil {
		return err
	}

	var resp struct {
		ShortID  string `json:"short_id"`
		ShortURL string `json:"short_url"`
	}
	err = apiCall(conf, http.MethodPost, "/api/store", map[string]any{
		"payload":    json.RawMessage(raw),
		"ciphertext": sealed.Ciphertext,
		"iv":         sealed.IV,
		"authTag":    sealed.AuthTag,
		"signature":  sealed.Signature,
		"algorithm":  types.AlgorithmEd25519.String(),
		"image_url":  saveImageURL,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Println("Stored:", resp.ShortID)
	fmt.Println("URL:   ", resp.ShortURL)
	return nil
}
