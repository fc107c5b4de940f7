package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <short_id>",
	Short: "Check a memory's signature and report its trust level",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	fmt.Println("short_id:       ", memory.ShortID)
	fmt.Println("algorithm:      ", memory.Algorithm)
	fmt.Println("trust_level:    ", env.Level.String())
	fmt.Println("signature_valid:", env.SignatureValid)
	if len(env.FlaggedPatterns) > 0 {
		fmt.Println("flagged:        ", env.FlaggedPatterns)
	}
	if env.Error != "" {
		fmt.Println("error:          ", env.Error)
	}
	return nil
}
