package defs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"nlud/internal/common/fsutil"
	"nlud/pkg/types"
)

// LoadBotConfig reads <dir>/bot.yaml. The id defaults to the directory name.
func LoadBotConfig(dir string) (types.BotConfig, error) {
	var cfg types.BotConfig
	if err := decodeFile(filepath.Join(dir, botFile), &cfg); err != nil {
		return cfg, err
	}
	if cfg.ID == "" {
		cfg.ID = filepath.Base(dir)
	}
	if len(cfg.Languages) == 0 {
		return cfg, fmt.Errorf("bot %s: no languages", cfg.ID)
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = cfg.Languages[0]
	}
	return cfg, nil
}

// LoadBotConfigs scans root for bot directories, ordered by id. Directories
// without a bot.yaml are skipped.
func LoadBotConfigs(root string) ([]types.BotConfig, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []types.BotConfig
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if !fsutil.PathExists(filepath.Join(dir, botFile)) {
			continue
		}
		cfg, err := LoadBotConfig(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
