package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuer-ai/memory-palace/pkg/trust"
	"github.com/cuer-ai/memory-palace/pkg/types"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <short_id>",
	Short: "Fetch a memory and decrypt it locally into a trust envelope",
	Long: `Fetch a stored capsule, decrypt it with the local palace key, verify
its signature and print the resulting trust envelope. Content is only
included when the capsule classifies as verified_data or
unsigned_plaintext; tampered or contaminated capsules withhold it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	memory, err := fetchMemory(conf, args[0])
	if err != nil {
		return err
	}

	env, err := openMemory(conf, memory)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// openMemory turns a fetched capsule into its trust envelope. Plaintext
// capsules passed the injection scan at ingest time and classify as
// unsigned plaintext; everything else goes through the full decrypt,
// verify and scan pipeline.
func openMemory(conf cliConfig, memory remoteMemory) (trust.Envelope, error) {
	algorithm, err := types.ParseAlgorithm(memory.Algorithm)
	if err != nil {
		return trust.Envelope{}, err
	}

	if algorithm == types.AlgorithmPlaintext {
		return trust.NewEnvelope(trust.LevelUnsignedPlaintext, memory.ShortID,
			json.RawMessage(memory.Ciphertext), nil), nil
	}

	if conf.PalaceKey == "" {
		return trust.Envelope{}, fmt.Errorf("no palace_key in config, cannot decrypt sealed memories")
	}
	return trust.OpenAndClassify(conf.PalaceKey, conf.PublicKey, conf.PalaceID,
		memory.ShortID, memory.Ciphertext, memory.Signature)
}
