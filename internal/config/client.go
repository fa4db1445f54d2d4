package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Client configures the scanner CLI.
type Client struct {
	Database        string        `yaml:"database"`
	ServerURL       string        `yaml:"server_url"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	Transport       string        `yaml:"transport"`
	Token           string        `yaml:"token"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	DeviceZone      string        `yaml:"device_zone"`
}

func DefaultClient() Client {
	return Client{
		Database:        defaultDatabasePath(),
		ServerURL:       "http://localhost:8080",
		GRPCAddr:        "localhost:50051",
		Transport:       TransportHTTP,
		ProbeInterval:   30 * time.Second,
		DispatchTimeout: 15 * time.Second,
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "scanner.db"
	}
	return filepath.Join(dir, "scansync", "scanner.db")
}

// LoadClient applies the YAML file at path (a missing file is not an error
// when path is empty) and then SCANNER_* environment overrides.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("SCANNER_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "scansync", "scanner.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Client{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Client{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Client{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Client) applyEnv() error {
	for key, dst := range map[string]*string{
		"SCANNER_DATABASE":    &c.Database,
		"SCANNER_SERVER_URL":  &c.ServerURL,
		"SCANNER_GRPC_ADDR":   &c.GRPCAddr,
		"SCANNER_TRANSPORT":   &c.Transport,
		"SCANNER_TOKEN":       &c.Token,
		"SCANNER_DEVICE_ZONE": &c.DeviceZone,
	} {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	var err error
	if c.ProbeInterval, err = durationEnv("SCANNER_PROBE_INTERVAL", c.ProbeInterval); err != nil {
		return err
	}
	if c.DispatchTimeout, err = durationEnv("SCANNER_DISPATCH_TIMEOUT", c.DispatchTimeout); err != nil {
		return err
	}
	return nil
}

func (c Client) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		if c.ServerURL == "" {
			return errors.New("server_url is required for the http transport")
		}
	case TransportGRPC:
		if c.GRPCAddr == "" {
			return errors.New("grpc_addr is required for the grpc transport")
		}
	default:
		return fmt.Errorf("transport %q: want http or grpc", c.Transport)
	}
	if c.Database == "" {
		return errors.New("database path is required")
	}
	if c.ProbeInterval <= 0 || c.DispatchTimeout <= 0 {
		return errors.New("probe_interval and dispatch_timeout must be positive")
	}
	return nil
}
