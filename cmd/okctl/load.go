package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/usecase/dto"
)

// definitions - файл с описанием датасетов
//
//	datasets:
//	  - title: Parken
//	    source_kind: url
//	    source_ref: https://example.org/parken.geojson
//	    title_template: "{naam}"
type definitions struct {
	Datasets []dto.DatasetRequest `yaml:"datasets"`
}

func parseDefinitions(r io.Reader) ([]dto.DatasetRequest, error) {
	var defs definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("definitions file is empty")
		}
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if len(defs.Datasets) == 0 {
		return nil, fmt.Errorf("no datasets defined")
	}

	seen := make(map[string]int, len(defs.Datasets))
	for i, d := range defs.Datasets {
		if d.Slug == "" {
			continue
		}
		if j, ok := seen[d.Slug]; ok {
			return nil, fmt.Errorf("datasets %d and %d share slug %q", j+1, i+1, d.Slug)
		}
		seen[d.Slug] = i
	}
	return defs.Datasets, nil
}

func newLoadCmd(envFile *string) *cobra.Command {
	var withSync bool

	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Создать или обновить датасеты из YAML",
		Long: "Датасет с указанным slug обновляется, без slug или с новым slug создается.\n" +
			"С --sync импорт выполняется сразу, иначе его выполнит воркер.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			reqs, err := parseDefinitions(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			uc := a.datasetUseCase(withSync)
			for _, req := range reqs {
				existing, err := a.findBySlug(ctx, req.Slug)
				if err != nil {
					return err
				}

				var ds *domain.Dataset
				action := "created"
				if existing != nil {
					action = "updated"
					ds, err = uc.Update(ctx, existing.ID, req)
				} else {
					ds, err = uc.Create(ctx, req)
				}
				if err != nil {
					return fmt.Errorf("dataset %q: %w", req.Title, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", action, ds.ID, ds.Slug)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSync, "sync", false, "Импортировать сразу после сохранения")
	return cmd
}

func (a *app) findBySlug(ctx context.Context, slug string) (*domain.Dataset, error) {
	if slug == "" {
		return nil, nil
	}
	list, _, err := a.datasetRepo.List(ctx, domain.DatasetFilter{Slugs: []string{slug}, Page: 1, PerPage: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
