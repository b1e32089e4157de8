package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk shape of a schema declaration file
type fileSchema struct {
	Entities []fileEntity `yaml:"entities"`
}

type fileEntity struct {
	Name       string                  `yaml:"name"`
	Table      string                  `yaml:"table"`
	PrimaryKey string                  `yaml:"primaryKey"`
	Columns    []string                `yaml:"columns"`
	Relations  map[string]fileRelation `yaml:"relations"`
}

type fileRelation struct {
	Kind          string `yaml:"kind"`
	Target        string `yaml:"target"`
	SourceKey     string `yaml:"sourceKey"`
	TargetKey     string `yaml:"targetKey"`
	JoinEntity    string `yaml:"joinEntity"`
	JoinSourceKey string `yaml:"joinSourceKey"`
	JoinTargetKey string `yaml:"joinTargetKey"`
	JoinUnique    bool   `yaml:"joinUnique"`
}

// LoadFile reads a yaml schema declaration and builds the relation graph
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds the relation graph from yaml schema declarations
func Parse(data []byte) (*Graph, error) {
	var file fileSchema
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("schema file declares no entities")
	}

	entities := make([]*Entity, 0, len(file.Entities))
	for _, fe := range file.Entities {
		entity := NewEntity(fe.Name, fe.Table, fe.Columns...)
		if fe.PrimaryKey != "" {
			entity.WithPrimaryKey(fe.PrimaryKey)
		}
		for name, fr := range fe.Relations {
			kind, err := ParseRelationKind(fr.Kind)
			if err != nil {
				return nil, fmt.Errorf("entity %s, relation %s: %w", fe.Name, name, err)
			}
			entity.AddRelation(&Relation{
				Name:          name,
				Kind:          kind,
				Target:        fr.Target,
				SourceKey:     fr.SourceKey,
				TargetKey:     fr.TargetKey,
				JoinEntity:    fr.JoinEntity,
				JoinSourceKey: fr.JoinSourceKey,
				JoinTargetKey: fr.JoinTargetKey,
				JoinUnique:    fr.JoinUnique,
			})
		}
		entities = append(entities, entity)
	}

	return Build(entities)
}
