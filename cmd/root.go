package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tinyimg",
	Short: "tinyimg - shrink PNG files",
	Long: "tinyimg optimizes PNG files losslessly by reducing color types and bit depths,\n" +
		"choosing scanline filters and recompressing image data. An optional lossy pass\n" +
		"picks the smallest palette that stays within a perceptual color budget.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SilenceErrors = true
}
