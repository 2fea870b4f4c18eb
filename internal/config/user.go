package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// User-level tunables with their hand-tuned defaults.
const (
	keyStaleSecs           = "coordination.stale_secs"
	keyConfidenceThreshold = "phase.confidence_threshold"
	keyMinIntervalSecs     = "phase.min_interval_secs"
	keyStoreRoot           = "store.root"
)

var (
	userOnce sync.Once
	user     *viper.Viper
)

// userConfig lazily loads ~/.config/edda/config.yaml. A missing file is
// fine; a malformed one is ignored with defaults (user config is advisory).
func userConfig() *viper.Viper {
	userOnce.Do(func() {
		v := viper.New()
		v.SetDefault(keyStaleSecs, 120)
		v.SetDefault(keyConfidenceThreshold, 0.6)
		v.SetDefault(keyMinIntervalSecs, 30)
		v.SetDefault(keyStoreRoot, "")

		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "edda"))
		}
		_ = v.ReadInConfig()
		user = v
	})
	return user
}

// StaleSecs is the heartbeat age beyond which a session counts as stale.
func StaleSecs() int64 {
	return userConfig().GetInt64(keyStaleSecs)
}

// PhaseConfidenceThreshold is the minimum confidence for reporting a phase
// transition.
func PhaseConfidenceThreshold() float64 {
	return userConfig().GetFloat64(keyConfidenceThreshold)
}

// PhaseMinIntervalSecs is the debounce interval between reported phase
// transitions.
func PhaseMinIntervalSecs() int64 {
	return userConfig().GetInt64(keyMinIntervalSecs)
}

// StoreRootOverride returns a user-configured state-store root, or "".
func StoreRootOverride() string {
	return userConfig().GetString(keyStoreRoot)
}
