// SPDX-License-Identifier: MIT
package filterbank

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// asset is the on-disk form of a packed filter bank.
type asset struct {
	SpecLen      int       `yaml:"spec_len"`     // Spectrum length the bank was built for.
	Starts       []int     `yaml:"starts"`       // First spectrum bin of each filter.
	Lengths      []int     `yaml:"lengths"`      // Non-zero run length of each filter.
	Coefficients []float64 `yaml:"coefficients"` // All runs concatenated in filter order.
}

// Load reads a packed filter bank from a YAML file and validates it against
// the expected spectrum length.
func Load(fs afero.Fs, path string, specLen int) (*FilterBank, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter bank %s: %w", path, err)
	}

	var a asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidFilterBank, path, err)
	}

	if a.SpecLen != specLen {
		return nil, fmt.Errorf("%w: %s was built for %d spectrum bins, need %d",
			ErrInvalidFilterBank, path, a.SpecLen, specLen)
	}
	return New(a.Starts, a.Lengths, a.Coefficients, specLen)
}

// Save writes the bank in the format read by Load.
func Save(fs afero.Fs, path string, fb *FilterBank) error {
	data, err := yaml.Marshal(asset{
		SpecLen:      fb.specLen,
		Starts:       fb.starts,
		Lengths:      fb.lengths,
		Coefficients: fb.packed,
	})
	if err != nil {
		return fmt.Errorf("failed to encode filter bank: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}
