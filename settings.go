package sensitive

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/anatolykoptev/go-sensitive/applock"
)

// DefaultListen is the address the proxy server binds by default.
const DefaultListen = ":8080"

// ErrNoRedis is returned when a Redis client is requested but no address is
// configured.
var ErrNoRedis = errors.New("sensitive: redis address not configured")

type settingsFile struct {
	ProxyURL string         `yaml:"sensitiveMediaDetectionProxyUrl"`
	ModelDir string         `yaml:"modelDir"`
	Listen   string         `yaml:"listen"`
	Redis    *RedisSettings `yaml:"redis,omitempty"`
}

// RedisSettings locates the Redis server backing applock.
type RedisSettings struct {
	// Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password required when connecting to the Redis server.
	Password string `yaml:"password,omitempty"`
	// DB to connect to.
	DB int `yaml:"db,omitempty"`
}

// Settings is the administrative configuration. The proxy URL may be changed
// at runtime; Detectors built with Settings.ProxyURL observe the change on
// their next call.
type Settings struct {
	mu       sync.RWMutex
	proxyURL string
	modelDir string
	listen   string
	redis    RedisSettings
}

// LoadSettings reads YAML settings from path.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSettings(data)
}

// ParseSettings parses YAML settings. Unknown keys are ignored.
func ParseSettings(data []byte) (*Settings, error) {
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}
	if err := ValidateProxyURL(f.ProxyURL); err != nil {
		return nil, err
	}
	st := &Settings{
		proxyURL: strings.TrimSpace(f.ProxyURL),
		modelDir: f.ModelDir,
		listen:   f.Listen,
	}
	if f.Redis != nil {
		st.redis = *f.Redis
	}
	return st, nil
}

// ProxyURL returns the current proxy endpoint ("" = local inference).
func (s *Settings) ProxyURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxyURL
}

// SetProxyURL replaces the proxy endpoint after validating it.
func (s *Settings) SetProxyURL(u string) error {
	if err := ValidateProxyURL(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxyURL = strings.TrimSpace(u)
	return nil
}

// ModelDir returns the configured model directory or DefaultModelDir().
func (s *Settings) ModelDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.modelDir == "" {
		return DefaultModelDir()
	}
	return s.modelDir
}

// SetModelDir overrides the model directory.
func (s *Settings) SetModelDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelDir = dir
}

// Listen returns the server listen address or DefaultListen.
func (s *Settings) Listen() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listen == "" {
		return DefaultListen
	}
	return s.listen
}

// SetListen overrides the server listen address.
func (s *Settings) SetListen(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listen = addr
}

// Redis returns the Redis connection settings.
func (s *Settings) Redis() RedisSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redis
}

// SetRedisAddr overrides the Redis address.
func (s *Settings) SetRedisAddr(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redis.Addr = addr
}

// RedisClient opens a client for the configured Redis server. Connections
// are established lazily by the first command.
func (s *Settings) RedisClient() (*redis.Client, error) {
	r := s.Redis()
	if strings.TrimSpace(r.Addr) == "" {
		return nil, ErrNoRedis
	}
	return redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}), nil
}

// LockService returns an applock service on a new client for the configured
// Redis server. The caller closes the client.
func (s *Settings) LockService(opts ...applock.Option) (*applock.Service, *redis.Client, error) {
	client, err := s.RedisClient()
	if err != nil {
		return nil, nil, err
	}
	return applock.New(client, opts...), client, nil
}

// Marshal renders the settings as YAML. The Redis password is masked.
func (s *Settings) Marshal() ([]byte, error) {
	s.mu.RLock()
	f := settingsFile{ProxyURL: s.proxyURL, ModelDir: s.modelDir, Listen: s.listen}
	if s.redis != (RedisSettings{}) {
		r := s.redis
		if r.Password != "" {
			r.Password = "********"
		}
		f.Redis = &r
	}
	s.mu.RUnlock()
	return yaml.Marshal(f)
}
