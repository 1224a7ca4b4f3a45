package core

import (
	"testing"

	"go.uber.org/zap"
)

// testEngine wires a full engine over a throwaway store.
type testEngine struct {
	cfg      Config
	store    *LevelStore
	ledger   *Ledger
	econ     *Economics
	bus      *Bus
	registry *Registry
	chain    *Chain
	miner    *Miner
	bridge   *Bridge
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Difficulty = 1
	cfg.DataDir = t.TempDir()
	cfg.GenesisAlloc = map[string]float64{"V1": 10_000}
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := OpenLevelStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	ledger := NewLedger(cfg, log)
	econ := NewEconomics(log)
	bus := NewBus()
	registry := NewRegistry(cfg, log)

	chain, err := NewChain(cfg, store, ledger, econ, bus, log)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	return &testEngine{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		econ:     econ,
		bus:      bus,
		registry: registry,
		chain:    chain,
		miner:    NewMiner(cfg, chain, registry, econ, log),
		bridge:   NewBridge(chain, log),
	}
}

// calmSnapshot is a high-quality medical-grade reading that clears the
// eligibility threshold comfortably.
func calmSnapshot() BiometricSnapshot {
	return BiometricSnapshot{
		HeartRate:           65,
		HRV:                 90,
		StressLevel:         0.1,
		FocusLevel:          0.95,
		Authenticity:        0.99,
		GalvanicResponse:    0.1,
		Movement:            0.1,
		BlinkRate:           0.1,
		ReactionTime:        0.1,
		ResponseConsistency: 0.95,
		FacialValence:       0.9,
		Precision:           0.99,
		SessionMinutes:      30,
	}
}

// stressedSnapshot is a low-quality consumer reading well below the
// eligibility threshold.
func stressedSnapshot() BiometricSnapshot {
	return BiometricSnapshot{
		HeartRate:           110,
		HRV:                 20,
		StressLevel:         0.9,
		FocusLevel:          0.2,
		Authenticity:        0.5,
		GalvanicResponse:    0.8,
		Movement:            0.7,
		BlinkRate:           0.8,
		ReactionTime:        0.8,
		ResponseConsistency: 0.3,
		Precision:           0.5,
		SessionMinutes:      300,
	}
}
