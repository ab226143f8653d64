// Package hfgcs watches for a configured set of military aircraft
// types, identified by 24-bit address ranges and callsign prefixes,
// and tracks their detected/updated/lost lifecycle.
package hfgcs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// HexRange is an inclusive range of 24-bit ICAO addresses.
type HexRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`

	lo, hi uint32
}

// TypeConfig describes one watched aircraft type.
type TypeConfig struct {
	ID               string     `yaml:"id"`
	Name             string     `yaml:"name"`
	HexRanges        []HexRange `yaml:"hex_ranges"`
	CallsignPrefixes []string   `yaml:"callsign_prefixes"`
}

// WatchConfig is the full watch list.
type WatchConfig struct {
	Types []TypeConfig `yaml:"types"`
}

// DefaultConfig returns the built-in watch list: the TACAMO E-6B fleet
// and the E-4B NAOC airframes.
func DefaultConfig() *WatchConfig {
	cfg := &WatchConfig{
		Types: []TypeConfig{
			{
				ID:   "e6b",
				Name: "E-6B Mercury",
				HexRanges: []HexRange{
					{Start: "AE0C6E", End: "AE0C7D"},
					{Start: "AE1026", End: "AE1027"},
					{Start: "AE140B", End: "AE1422"},
				},
				CallsignPrefixes: []string{"IRON", "GOTO"},
			},
			{
				ID:   "e4b",
				Name: "E-4B Nightwatch",
				HexRanges: []HexRange{
					{Start: "ADFEB3", End: "ADFEB6"},
				},
				CallsignPrefixes: []string{"GORDO", "TITAN", "SLICK"},
			},
		},
	}
	if err := cfg.compile(); err != nil {
		panic(err) // built-in ranges are static
	}
	return cfg
}

// LoadConfig reads a YAML watch list, falling back to the built-in
// defaults when path is empty.
func LoadConfig(path string) (*WatchConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hfgcs: read config: %w", err)
	}

	var cfg WatchConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("hfgcs: parse config: %w", err)
	}
	if len(cfg.Types) == 0 {
		return nil, fmt.Errorf("hfgcs: config %s has no types", path)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *WatchConfig) compile() error {
	for i := range c.Types {
		t := &c.Types[i]
		if t.ID == "" {
			return fmt.Errorf("hfgcs: type %d has no id", i)
		}
		for j := range t.HexRanges {
			r := &t.HexRanges[j]
			lo, err := parseHex24(r.Start)
			if err != nil {
				return fmt.Errorf("hfgcs: type %s range start: %w", t.ID, err)
			}
			hi, err := parseHex24(r.End)
			if err != nil {
				return fmt.Errorf("hfgcs: type %s range end: %w", t.ID, err)
			}
			if hi < lo {
				return fmt.Errorf("hfgcs: type %s range %s..%s inverted", t.ID, r.Start, r.End)
			}
			r.lo, r.hi = lo, hi
		}
		for j, p := range t.CallsignPrefixes {
			t.CallsignPrefixes[j] = strings.ToUpper(strings.TrimSpace(p))
		}
	}
	return nil
}

func parseHex24(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad hex %q: %w", s, err)
	}
	if v > 0xFFFFFF {
		return 0, fmt.Errorf("hex %q exceeds 24 bits", s)
	}
	return uint32(v), nil
}

// ContainsHex reports whether any configured range covers the address.
func (c *WatchConfig) ContainsHex(hex string) bool {
	v, err := parseHex24(hex)
	if err != nil {
		return false
	}
	for i := range c.Types {
		for _, r := range c.Types[i].HexRanges {
			if v >= r.lo && v <= r.hi {
				return true
			}
		}
	}
	return false
}
