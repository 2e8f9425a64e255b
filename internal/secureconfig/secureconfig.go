// Package secureconfig loads the agent's configuration file and signing
// key, exposing sensitive values only through a narrow accessor, and
// scrubs itself on shutdown.
package secureconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/mr-tron/base58"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store loads configuration and a signing key once, and exposes sensitive
// values only via GetSensitive. It scrubs itself on SIGINT/SIGTERM.
type Store struct {
	logger *zap.Logger
	mu     sync.RWMutex

	config     types.AgentConfig
	sensitive  map[string]string
	scrubbed   bool
	signalOnce sync.Once
}

// New loads configPath (any format viper supports: yaml/json/toml/env) into
// a Store, merging it over the documented defaults, and decodes the signing
// key named by keyEnvVar (or the "signingKey" config entry if unset).
func New(logger *zap.Logger, configPath, keyEnvVar string) (*Store, error) {
	cfg := types.DefaultAgentConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("SNIPER")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", fmt.Errorf("read config: %w", err))
		}
		logger.Warn("config file not found, using defaults", zap.String("path", configPath))
	} else if err := v.Unmarshal(&cfg); err != nil {
		return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", fmt.Errorf("unmarshal config: %w", err))
	}

	s := &Store{
		logger:    logger.Named("secureconfig"),
		config:    cfg,
		sensitive: make(map[string]string),
	}

	rawKey := os.Getenv(keyEnvVar)
	if rawKey == "" {
		rawKey = v.GetString("signingKey")
	}
	if rawKey == "" {
		return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", fmt.Errorf("no signing key provided via %s or config", keyEnvVar))
	}
	keyBytes, format, err := DecodeSigningKey(rawKey)
	if err != nil {
		return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", err)
	}
	s.sensitive["signingKey"] = string(keyBytes)
	s.logger.Info("signing key loaded", zap.String("format", format), zap.Int("bytes", len(keyBytes)))

	s.installScrubHandler()
	return s, nil
}

// Config returns a copy of the non-sensitive configuration.
func (s *Store) Config() types.AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// GetSensitive returns a sensitive value by name. callingContext is recorded
// in the access log so misuse can be traced; it is not an authorization
// check.
func (s *Store) GetSensitive(name, callingContext string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scrubbed {
		return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", fmt.Errorf("sensitive store scrubbed"))
	}
	v, ok := s.sensitive[name]
	if !ok {
		return nil, agenterrors.New(agenterrors.ConfigError, "secureconfig", fmt.Errorf("no sensitive value named %q", name))
	}
	s.logger.Debug("sensitive value accessed", zap.String("name", name), zap.String("context", callingContext))
	return []byte(v), nil
}

// Scrub clears the sensitive-value map. Idempotent.
func (s *Store) Scrub() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrubbed {
		return
	}
	for k := range s.sensitive {
		s.sensitive[k] = ""
		delete(s.sensitive, k)
	}
	s.scrubbed = true
	s.logger.Info("sensitive store scrubbed")
}

func (s *Store) installScrubHandler() {
	s.signalOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-ch
			s.Scrub()
		}()
	})
}

// DecodeSigningKey tries, in fixed order, base58, base64, JSON numeric
// array, and comma-separated decimal bytes, accepting the first decode that
// yields a 32- or 64-byte buffer.
func DecodeSigningKey(raw string) (key []byte, format string, err error) {
	trimmed := strings.TrimSpace(raw)

	if b, decErr := base58.Decode(trimmed); decErr == nil && isValidKeyLength(len(b)) {
		return b, "base58", nil
	}
	if b, decErr := base64.StdEncoding.DecodeString(trimmed); decErr == nil && isValidKeyLength(len(b)) {
		return b, "base64", nil
	}
	if b, decErr := decodeJSONByteArray(trimmed); decErr == nil && isValidKeyLength(len(b)) {
		return b, "json-array", nil
	}
	if b, decErr := decodeCommaBytes(trimmed); decErr == nil && isValidKeyLength(len(b)) {
		return b, "comma-decimal", nil
	}
	return nil, "", fmt.Errorf("signing key did not decode to 32 or 64 bytes under any known format")
}

func isValidKeyLength(n int) bool { return n == 32 || n == 64 }

func decodeJSONByteArray(s string) ([]byte, error) {
	var nums []int
	if err := json.Unmarshal([]byte(s), &nums); err != nil {
		return nil, err
	}
	return intsToBytes(nums)
}

func decodeCommaBytes(s string) ([]byte, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("not comma-separated")
	}
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return intsToBytes(nums)
}

func intsToBytes(nums []int) ([]byte, error) {
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("byte value %d out of range", n)
		}
		out[i] = byte(n)
	}
	return out, nil
}
