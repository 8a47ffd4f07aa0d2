package warehouse

import (
	"strings"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// categoryRules are checked in order; the first matching pattern wins.
var categoryRules = []struct {
	pattern  string
	category domain.ChannelCategory
}{
	{"pharma", domain.CategoryPharmaceutical},
	{"cosmetic", domain.CategoryCosmetics},
}

// Classify assigns a channel category from its name, case-insensitively.
// Names matching no rule are Medical.
func Classify(channelName string) domain.ChannelCategory {
	lower := strings.ToLower(channelName)
	for _, rule := range categoryRules {
		if strings.Contains(lower, rule.pattern) {
			return rule.category
		}
	}
	return domain.CategoryMedical
}
