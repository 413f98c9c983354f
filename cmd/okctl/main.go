package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var envFile string

	root := &cobra.Command{
		Use:           "okctl",
		Short:         "Управление датасетами OpenKaarten из командной строки",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&envFile, "env", "e", "", "Файл с переменными окружения (по умолчанию .env)")

	root.AddCommand(
		newLoadCmd(&envFile),
		newSyncCmd(&envFile),
		newExportCmd(&envFile),
		newFormatsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
