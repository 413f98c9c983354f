package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openkaarten-service/internal/geo/codec"
)

func newExportCmd(envFile *string) *cobra.Command {
	var format, proj, output string

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Выгрузить датасет в выбранном формате",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid dataset id %q", args[0])
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			payload, err := a.publishUC.GetDataset(ctx, id, format, proj)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(payload.Body)
				return err
			}
			if err := os.WriteFile(output, payload.Body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d bytes (%s)\n", output, len(payload.Body), payload.ContentType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "geojson", "Формат вывода")
	cmd.Flags().StringVarP(&proj, "projection", "p", "WGS84", "Проекция: WGS84 или RD")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Файл; по умолчанию stdout")
	return cmd
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "Поддерживаемые форматы вывода",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tMIME TYPE\tATTACHMENT")
			for _, name := range codec.Formats() {
				f, _ := codec.Lookup(name)
				fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.MimeType, f.Attachment)
			}
			return tw.Flush()
		},
	}
}
