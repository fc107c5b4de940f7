package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <output.jsonl.xz>",
	Short: "Download the palace's capsules as an xz-compressed JSONL archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, conf.APIBase+"/api/export", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+conf.PalaceID)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	out, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d bytes to %s\n", written, args[0])
	return nil
}
