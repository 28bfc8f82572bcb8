package extractor

import (
	"fmt"

	"github.com/local/newsdigest/internal/command"
	"github.com/local/newsdigest/internal/config"
)

// TiersFromConfig resolves configured backend names into tiers. CLI tiers
// whose binary is missing are skipped with a warning left to the caller.
func TiersFromConfig(cfg config.ExtractionConfig, r command.Runner) (tiers []Tier, skipped []string, err error) {
	for _, tc := range cfg.Tiers {
		var b Backend
		switch Method(tc.Backend) {
		case MethodFitz:
			b = FitzBackend{}
		case MethodLayout:
			b = LayoutBackend{}
		case MethodPdftotext:
			if _, isExec := r.(command.Exec); isExec && !command.Available(cfg.PdftotextBin) {
				skipped = append(skipped, tc.Backend)
				continue
			}
			b = NewPdftotext(cfg.PdftotextBin, r)
		case MethodMutool:
			if _, isExec := r.(command.Exec); isExec && !command.Available(cfg.MutoolBin) {
				skipped = append(skipped, tc.Backend)
				continue
			}
			b = NewMutool(cfg.MutoolBin, r)
		default:
			return nil, nil, fmt.Errorf("unknown extraction backend %q", tc.Backend)
		}
		tiers = append(tiers, Tier{Backend: b, MaxRatio: tc.MaxRatio})
	}
	if len(tiers) == 0 {
		return nil, skipped, fmt.Errorf("no extraction tiers available")
	}
	return tiers, skipped, nil
}
