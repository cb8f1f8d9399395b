package main

import "sync"

type Config struct {
	EngineDepth           int    `json:"engine_depth"`
	EngineMultiPV         int    `json:"engine_multipv"`
	CaptureCooldownMs     int    `json:"capture_cooldown_ms"`
	LocalOverrideWindowMs int    `json:"local_override_window_ms"`
	AnalyzeTurnPolicy     string `json:"analyze_turn_policy"`
	RecognizerModel       string `json:"recognizer_model"`
	PersistSession        bool   `json:"persist_session"`
	LogStaleDrops         bool   `json:"log_stale_drops"`
}

// Turn-gating values for AnalyzeTurnPolicy. The default analyzes every
// position regardless of whose turn it is, serving both "my best move" and
// "predict the opponent" at once.
const (
	TurnPolicyBoth     = "both"
	TurnPolicyLocal    = "local"
	TurnPolicyOpponent = "opponent"
)

type ConfigStore struct {
	mu     sync.RWMutex
	config Config
}

func DefaultConfig() Config {
	return Config{
		EngineDepth:   18,
		EngineMultiPV: 3,

		// Bounds the rate at which the external recognizer is invoked.
		CaptureCooldownMs: 1500,

		// How long automatic reconciliation stays suspended after an
		// interactive move. Restarted by each new local move.
		LocalOverrideWindowMs: 4000,

		AnalyzeTurnPolicy: TurnPolicyBoth,
		RecognizerModel:   "gpt-4o-mini",
		PersistSession:    true,
		LogStaleDrops:     false,
	}
}

var configStore = &ConfigStore{config: DefaultConfig()}

func GetConfig() Config {
	return configStore.Get()
}

func (c *ConfigStore) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *ConfigStore) Update(newConfig Config) {
	if newConfig.EngineMultiPV < 1 {
		newConfig.EngineMultiPV = 1
	}
	switch newConfig.AnalyzeTurnPolicy {
	case TurnPolicyBoth, TurnPolicyLocal, TurnPolicyOpponent:
	default:
		newConfig.AnalyzeTurnPolicy = TurnPolicyBoth
	}
	c.mu.Lock()
	c.config = newConfig
	c.mu.Unlock()
}
