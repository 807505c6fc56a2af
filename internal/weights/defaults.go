package weights

import "github.com/alanyoungcy/consensusbot/internal/domain"

// Backtested default tables. Agents that only exist remotely
// (masterStrategist, deepAnalysis, ...) simply resolve to 0 unless enabled.

var defaultGlobal = Table{
	"masterStrategist": 1.35,
	"stats":            1.30,
	"odds":             1.20,
	"geniusAnalyst":    1.15,
	"deepAnalysis":     1.10,
	"h2h":              1.10,
	"form":             1.05,
	"consensus":        1.00,
	"devilsAdvocate":   0.95,
}

var overUnderWeights = Table{
	"stats":            1.40,
	"masterStrategist": 1.30,
	"odds":             1.20,
	"geniusAnalyst":    1.15,
	"deepAnalysis":     1.10,
	"h2h":              1.05,
	"form":             1.05,
	"devilsAdvocate":   0.90,
}

var defaultByMarket = map[domain.Market]Table{
	domain.MarketMatchResult: {
		"masterStrategist": 1.40,
		"stats":            1.35,
		"odds":             1.15,
		"geniusAnalyst":    1.10,
		"deepAnalysis":     1.05,
		"h2h":              1.05,
		"form":             1.00,
		"devilsAdvocate":   0.95,
	},
	domain.MarketOverUnder25: overUnderWeights,
	domain.MarketOverUnder35: overUnderWeights,
	domain.MarketBTTS: {
		"geniusAnalyst":    1.20,
		"stats":            1.15,
		"masterStrategist": 1.10,
		"odds":             1.10,
		"h2h":              1.10,
		"deepAnalysis":     1.05,
		"form":             0.95,
		"devilsAdvocate":   0.85,
	},
}

var defaultByLeague = map[string]Table{
	"Premier League": {"masterStrategist": 1.40, "stats": 1.35, "odds": 1.25, "deepAnalysis": 1.00, "h2h": 0.95, "form": 0.90},
	"La Liga":        {"masterStrategist": 1.35, "stats": 1.30, "h2h": 1.25, "odds": 1.15, "deepAnalysis": 1.10, "form": 1.05},
	"Serie A":        {"stats": 1.40, "masterStrategist": 1.35, "odds": 1.10, "h2h": 1.10, "deepAnalysis": 1.00, "form": 0.95},
	"Bundesliga":     {"stats": 1.35, "masterStrategist": 1.30, "form": 1.20, "odds": 1.10, "deepAnalysis": 1.05, "h2h": 1.00},
	"Ligue 1":        {"odds": 1.30, "masterStrategist": 1.25, "stats": 1.20, "deepAnalysis": 1.00, "form": 1.05, "h2h": 0.95},
	"Championship":   {"form": 1.25, "h2h": 1.20, "stats": 1.15, "masterStrategist": 1.10, "odds": 0.95, "deepAnalysis": 1.00},
}

var defaultByMatchType = map[string]Table{
	domain.MatchTypeDerby:      {"form": 1.30, "masterStrategist": 1.20, "h2h": 1.15, "odds": 1.10, "deepAnalysis": 1.05, "stats": 0.95},
	domain.MatchTypeHighLeague: {"stats": 1.35, "masterStrategist": 1.30, "odds": 1.20, "deepAnalysis": 1.05, "h2h": 1.00, "form": 0.95},
	domain.MatchTypeLowLeague:  {"form": 1.25, "h2h": 1.20, "masterStrategist": 1.15, "deepAnalysis": 1.10, "stats": 1.05, "odds": 0.90},
	domain.MatchTypeHomeGame:   {"stats": 1.30, "masterStrategist": 1.25, "odds": 1.10, "form": 1.05, "h2h": 1.05, "deepAnalysis": 1.00},
	domain.MatchTypeAwayGame:   {"masterStrategist": 1.25, "form": 1.20, "stats": 1.20, "h2h": 1.15, "deepAnalysis": 1.05, "odds": 1.00},
}

// DefaultConfig returns the built-in weight tables.
func DefaultConfig() Config {
	return NewConfig(defaultGlobal, defaultByLeague, defaultByMarket, defaultByMatchType)
}

// DefaultTables exposes copies of the built-in tables so configuration can
// layer file values on top of them.
func DefaultTables() (Table, map[string]Table, map[domain.Market]Table, map[string]Table) {
	c := DefaultConfig()
	return c.global, c.byLeague, c.byMarket, c.byMatchType
}
