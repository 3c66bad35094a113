package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/foldvcs/fold/pkg/mergeort"
)

// MergeConfig is the on-disk, TOML-encoded override layer for merge
// engine options (.got/mergeconfig.toml). Any field left unset in the file
// falls through to mergeort.DefaultOptions(), matching the precedence
// ReadConfig/WriteConfig already use for remotes: file overrides built-in
// defaults. Merge, the only caller, applies nothing on top of the file.
type MergeConfig struct {
	DetectRenames          string `toml:"detect_renames"`           // "off" | "on"
	DetectDirectoryRenames string `toml:"detect_directory_renames"` // "none" | "conflict" | "true"
	RenameLimit            int    `toml:"rename_limit"`
	RenameScore            int    `toml:"rename_score"`
	Renormalize            bool   `toml:"renormalize"`
}

func (r *Repo) mergeConfigPath() string {
	return filepath.Join(r.GotDir, "mergeconfig.toml")
}

// LoadMergeOptions reads .got/mergeconfig.toml (if present) and applies it
// on top of mergeort.DefaultOptions(). A missing file is not an error.
func (r *Repo) LoadMergeOptions() (mergeort.Options, error) {
	opts := mergeort.DefaultOptions()

	data, err := os.ReadFile(r.mergeConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("load merge config: %w", err)
	}

	var cfg MergeConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return opts, fmt.Errorf("load merge config: parse: %w", err)
	}

	switch cfg.DetectRenames {
	case "off":
		opts.DetectRenames = mergeort.RenameOff
	case "on", "":
		// keep default
	default:
		return opts, fmt.Errorf("load merge config: detect_renames: unknown value %q", cfg.DetectRenames)
	}

	switch cfg.DetectDirectoryRenames {
	case "none":
		opts.DetectDirectoryRenames = mergeort.DirRenameNone
	case "conflict", "":
		// keep default
	case "true":
		opts.DetectDirectoryRenames = mergeort.DirRenameTrue
	default:
		return opts, fmt.Errorf("load merge config: detect_directory_renames: unknown value %q", cfg.DetectDirectoryRenames)
	}

	if cfg.RenameLimit > 0 {
		opts.RenameLimit = cfg.RenameLimit
	}
	if cfg.RenameScore > 0 {
		opts.RenameScore = cfg.RenameScore
	}
	opts.Renormalize = cfg.Renormalize

	return opts, nil
}
