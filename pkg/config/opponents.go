package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	Opponent struct {
		Name  string `yaml:"name"`
		Color uint32 `yaml:"color"`
	}
	opponentFile struct {
		Opponents []Opponent `yaml:"opponents"`
	}
)

func DefaultOpponents() []Opponent {
	return []Opponent{
		{Name: "Lightning Max", Color: 0xFF0000},
		{Name: "Turbo Sam", Color: 0x0000FF},
		{Name: "Speed Demon", Color: 0x00FF00},
		{Name: "Nitro Knight", Color: 0xFFFF00},
		{Name: "Velocity Viper", Color: 0xFF00FF},
		{Name: "Thunder Bolt", Color: 0x00FFFF},
		{Name: "Sonic Racer", Color: 0xFFA500},
		{Name: "Hyper Drive", Color: 0x800080},
	}
}

// LoadOpponents reads the opponent pool from a yaml file.
// An empty path returns the default pool.
func LoadOpponents(path string) ([]Opponent, error) {
	if path == "" {
		return DefaultOpponents(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f opponentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("opponents file %s: %w", path, err)
	}
	if len(f.Opponents) == 0 {
		return nil, fmt.Errorf("opponents file %s: no opponents defined", path)
	}
	seen := make(map[string]struct{}, len(f.Opponents))
	for _, o := range f.Opponents {
		if _, ok := seen[o.Name]; ok {
			return nil, fmt.Errorf("opponents file %s: duplicate name %q", path, o.Name)
		}
		seen[o.Name] = struct{}{}
	}
	return f.Opponents, nil
}
