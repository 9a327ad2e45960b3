package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/loykin/craftvisor/internal/fsutil"
	"github.com/spf13/viper"
)

// DefaultMemory is used when the settings file is missing, corrupt or holds an
// unusable value.
const DefaultMemory = "2G"

const memoryKey = "memoryAllocation"

// memoryRe accepts JVM heap sizes such as 512M, 4G or 1048576.
var memoryRe = regexp.MustCompile(`^[1-9][0-9]*[kKmMgG]?$`)

var ErrInvalidMemory = errors.New("memory allocation must look like 512M or 4G")

// ServerSettings is the externally editable settings file read before every launch.
type ServerSettings struct {
	MemoryAllocation string `json:"memoryAllocation" mapstructure:"memoryAllocation"`
}

// ValidMemory reports whether s is an acceptable heap size.
func ValidMemory(s string) bool { return memoryRe.MatchString(s) }

// LoadSettings reads the settings file. It never fails: problems are logged and
// defaults substituted.
func LoadSettings(path string, log *slog.Logger) ServerSettings {
	if log == nil {
		log = slog.Default()
	}
	out := ServerSettings{MemoryAllocation: DefaultMemory}
	if path == "" {
		return out
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			log.Warn("settings stat failed", "path", path, "error", err)
		}
		return out
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		log.Warn("settings unreadable, using defaults", "path", path, "error", err)
		return out
	}
	mem := strings.TrimSpace(v.GetString(memoryKey))
	switch {
	case mem == "":
	case ValidMemory(mem):
		out.MemoryAllocation = mem
	default:
		log.Warn("settings memoryAllocation invalid, using default", "value", mem, "default", DefaultMemory)
	}
	return out
}

// SaveMemory sets memoryAllocation in the settings JSON, preserving any other
// keys already present. It takes effect on the next start.
func SaveMemory(path, mem string) error {
	mem = strings.TrimSpace(mem)
	if !ValidMemory(mem) {
		return fmt.Errorf("%w: %q", ErrInvalidMemory, mem)
	}
	doc := map[string]any{}
	if b, err := os.ReadFile(filepath.Clean(path)); err == nil {
		// a corrupt file is replaced rather than merged
		_ = json.Unmarshal(b, &doc)
		if doc == nil {
			doc = map[string]any{}
		}
	}
	doc[memoryKey] = mem
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
