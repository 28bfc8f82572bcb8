package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay mirrors the tunable subset of Config. Zero values leave the
// env-derived setting untouched.
type fileOverlay struct {
	Extraction *ExtractionConfig `yaml:"extraction"`
	Strategy   *StrategyConfig   `yaml:"strategy"`
	Segment    *SegmentConfig    `yaml:"segment"`
	Cluster    *ClusterConfig    `yaml:"cluster"`
}

// ApplyFile overlays thresholds from a YAML file onto cfg.
//
//	extraction:
//	  tiers:
//	    - {backend: fitz, max_ratio: 0.15}
//	    - {backend: layout, max_ratio: 0.10}
//	strategy:
//	  max_ratio: 0.2
func ApplyFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var ov fileOverlay
	if err := yaml.Unmarshal(b, &ov); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if e := ov.Extraction; e != nil {
		if len(e.Tiers) > 0 {
			cfg.Extraction.Tiers = e.Tiers
		}
		setString(&cfg.Extraction.ScriptRanges, e.ScriptRanges)
		setString(&cfg.Extraction.PdftotextBin, e.PdftotextBin)
		setString(&cfg.Extraction.MutoolBin, e.MutoolBin)
	}
	if s := ov.Strategy; s != nil {
		setInt(&cfg.Strategy.MinTextLength, s.MinTextLength)
		setFloat(&cfg.Strategy.MaxRatio, s.MaxRatio)
	}
	if s := ov.Segment; s != nil {
		setFloat(&cfg.Segment.HeadlineHeightFactor, s.HeadlineHeightFactor)
		setInt(&cfg.Segment.MinHeadlineLength, s.MinHeadlineLength)
		setInt(&cfg.Segment.MaxHeadlineLength, s.MaxHeadlineLength)
		setInt(&cfg.Segment.MinBodyLength, s.MinBodyLength)
	}
	if c := ov.Cluster; c != nil {
		setFloat(&cfg.Cluster.Eps, c.Eps)
		setInt(&cfg.Cluster.MinSamples, c.MinSamples)
		setInt(&cfg.Cluster.MaxFeatures, c.MaxFeatures)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
