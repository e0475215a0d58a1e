package cost

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPrice is the USD price per one million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// SearchPrice is the USD price per search credit.
type SearchPrice struct {
	PerCredit float64 `yaml:"per_credit"`
}

// PriceTable maps tool names to prices.
type PriceTable struct {
	Models map[string]ModelPrice  `yaml:"models"`
	Search map[string]SearchPrice `yaml:"search"`
}

// SerperTool is the tool name used for Serper search records.
const SerperTool = "serper"

// DefaultPrices returns the built-in price table.
func DefaultPrices() PriceTable {
	return PriceTable{
		Models: map[string]ModelPrice{
			"gpt-4o":       {InputPerMillion: 2.5, OutputPerMillion: 10},
			"gpt-4o-mini":  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"gpt-4.1":      {InputPerMillion: 2, OutputPerMillion: 8},
			"gpt-4.1-mini": {InputPerMillion: 0.4, OutputPerMillion: 1.6},
		},
		Search: map[string]SearchPrice{
			// $52.5 per 50k credits
			SerperTool: {PerCredit: 52.5 / 50000},
		},
	}
}

// LoadPrices returns the default table with entries from a YAML file laid
// over it. An empty path returns the defaults.
func LoadPrices(path string) (PriceTable, error) {
	table := DefaultPrices()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PriceTable{}, fmt.Errorf("read price file: %w", err)
	}

	var override PriceTable
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && !errors.Is(err, io.EOF) {
		return PriceTable{}, fmt.Errorf("parse price file %s: %w", path, err)
	}

	for name, p := range override.Models {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return PriceTable{}, fmt.Errorf("price file %s: negative price for %q", path, name)
		}
		table.Models[name] = p
	}
	for name, p := range override.Search {
		if p.PerCredit < 0 {
			return PriceTable{}, fmt.Errorf("price file %s: negative price for %q", path, name)
		}
		table.Search[name] = p
	}
	return table, nil
}

// ModelCost prices token counts for one model.
func (p ModelPrice) ModelCost(promptTokens, completionTokens int64) float64 {
	return float64(promptTokens)/1e6*p.InputPerMillion + float64(completionTokens)/1e6*p.OutputPerMillion
}

// SearchCost prices a credit count.
func (p SearchPrice) SearchCost(credits int64) float64 {
	return float64(credits) * p.PerCredit
}
