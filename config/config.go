package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the server's configuration, loaded from a line-oriented
// KEY=VALUE file per spec §6. Every field has a counterpart in the
// optional JSONC overlay (manager.go's overrides struct), keyed there by
// its snake_case name (port, document_root, ...).
type Config struct {
	Port             int
	DocumentRoot     string
	NumWorkers       int
	ThreadsPerWorker int
	MaxQueueSize     int
	LogFile          string
	CacheSizeMB      int
	TimeoutSeconds   int
}

// Defaults mirrors the defaults listed in spec §6.
func Defaults() Config {
	return Config{
		Port:             8080,
		DocumentRoot:     "www",
		NumWorkers:       2,
		ThreadsPerWorker: 10,
		MaxQueueSize:     100,
		LogFile:          "logs/access.log",
		CacheSizeMB:      64,
		TimeoutSeconds:   30,
	}
}

// Load reads path as a line-oriented KEY=VALUE file (blank lines and
// lines starting with '#' ignored, grounded on original_source/src/
// config.c's load_config) on top of Defaults(). If a sidecar file
// "<path>.overrides.jsonc" exists next to path, its fields are applied
// last via the hujson overlay in manager.go — an ambient convenience,
// not part of the spec's required configuration contract.
func Load(path string) (Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := applyKeyValueFile(&cfg, f); err != nil {
		return cfg, err
	}

	overridePath := path + ".overrides.jsonc"
	if _, err := os.Stat(overridePath); err == nil {
		o, err := loadOverridesJSON(overridePath)
		if err != nil {
			return cfg, fmt.Errorf("config: loading overrides: %w", err)
		}
		o.applyTo(&cfg)
	}

	return cfg, nil
}

func applyKeyValueFile(cfg *Config, f *os.File) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if err := setByKey(cfg, key, value); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return scanner.Err()
}

func setByKey(cfg *Config, key, value string) error {
	switch key {
	case "PORT":
		return setInt(&cfg.Port, value)
	case "DOCUMENT_ROOT":
		cfg.DocumentRoot = value
	case "NUM_WORKERS":
		return setInt(&cfg.NumWorkers, value)
	case "THREADS_PER_WORKER":
		return setInt(&cfg.ThreadsPerWorker, value)
	case "MAX_QUEUE_SIZE":
		return setInt(&cfg.MaxQueueSize, value)
	case "LOG_FILE":
		cfg.LogFile = value
	case "CACHE_SIZE_MB":
		return setInt(&cfg.CacheSizeMB, value)
	case "TIMEOUT_SECONDS":
		return setInt(&cfg.TimeoutSeconds, value)
	default:
		// unrecognized keys are ignored, matching load_config's
		// sscanf-based parse which never rejects an unknown key.
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	*dst = n
	return nil
}

// CachePerWorkerBytes divides CacheSizeMB across NumWorkers with a floor
// of 1MiB per worker, per spec §6's CACHE_SIZE_MB note.
func (c Config) CachePerWorkerBytes() int64 {
	if c.NumWorkers <= 0 {
		return int64(c.CacheSizeMB) * 1024 * 1024
	}
	per := int64(c.CacheSizeMB) * 1024 * 1024 / int64(c.NumWorkers)
	if per < 1<<20 {
		per = 1 << 20
	}
	return per
}
