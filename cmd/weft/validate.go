package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-db/weft/internal/config"
	"github.com/weft-db/weft/internal/schema"
)

var validateSchema string

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "Path to the schema file (overrides config)")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the relation schema",
	Long:  "Load the schema file, check every entity and relation, and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := validateSchema
		if path == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path = cfg.Engine.SchemaFile
		}

		graph, err := schema.LoadFile(path)
		if err != nil {
			return fmt.Errorf("schema validation failed: %w", err)
		}

		successColor := color.New(color.FgGreen, color.Bold)
		infoColor := color.New(color.FgCyan)

		names := graph.Entities()
		relations := 0
		for _, name := range names {
			entity, _ := graph.Entity(name)
			relations += len(entity.Relations)
		}
		successColor.Printf("Schema OK: %d entities, %d relations\n", len(names), relations)

		for _, name := range names {
			entity, _ := graph.Entity(name)
			infoColor.Printf("  %s (table %s, key %s)\n", entity.Name, entity.Table, entity.PrimaryKey)

			relNames := make([]string, 0, len(entity.Relations))
			for relName := range entity.Relations {
				relNames = append(relNames, relName)
			}
			sort.Strings(relNames)
			for _, relName := range relNames {
				rel := entity.Relations[relName]
				fmt.Printf("    %s -> %s (%s)\n", rel.Name, rel.Target, rel.Kind)
			}
		}
		return nil
	},
}
