package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/andreyvit/vstore"
)

const (
	configFileName = "vstore"
	configFileType = "yaml"
	envPrefix      = "VSTORE"

	cfgKeyDataDir         = "data_dir"
	cfgKeyDatabase        = "database"
	cfgKeyStores          = "stores"
	cfgKeyObjects         = "objects"
	cfgKeyPollInterval    = "poll_interval"
	cfgKeyPollAttempts    = "poll_attempts"
	cfgKeyUpgradeTimeout  = "upgrade_timeout"
	cfgKeyStrictReadiness = "strict_readiness"

	defaultDataDir  = ".vstore"
	defaultDatabase = "default"
)

type indexConfig struct {
	Name    string   `mapstructure:"name"`
	KeyPath []string `mapstructure:"key_path"`
	Unique  bool     `mapstructure:"unique"`
	Multi   bool     `mapstructure:"multi"`
}

type storeConfig struct {
	Name    string        `mapstructure:"name"`
	Indexes []indexConfig `mapstructure:"indexes"`
}

type config struct {
	DataDir         string        `mapstructure:"data_dir"`
	Database        string        `mapstructure:"database"`
	Stores          []storeConfig `mapstructure:"stores"`
	Objects         []string      `mapstructure:"objects"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollAttempts    int           `mapstructure:"poll_attempts"`
	UpgradeTimeout  time.Duration `mapstructure:"upgrade_timeout"`
	StrictReadiness bool          `mapstructure:"strict_readiness"`
}

// loadConfig reads vstore.yaml from the given file, or from the working
// directory when file is empty, then applies VSTORE_* environment variables.
// A missing default config file is not an error.
func loadConfig(file string) (*config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDataDir, defaultDataDir)
	v.SetDefault(cfgKeyDatabase, defaultDatabase)
	v.SetDefault(cfgKeyPollInterval, vstore.DefaultPollInterval)
	v.SetDefault(cfgKeyPollAttempts, vstore.DefaultPollAttempts)
	v.SetDefault(cfgKeyUpgradeTimeout, vstore.DefaultUpgradeTimeout)
	v.SetDefault(cfgKeyStrictReadiness, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (cfg *config) schema() (*vstore.Schema, error) {
	scm := vstore.NewSchema()
	seen := make(map[string]bool)
	declare := func(name string) error {
		if name == "" {
			return errors.New("config: store without a name")
		}
		if seen[name] {
			return fmt.Errorf("config: %q declared twice", name)
		}
		seen[name] = true
		return nil
	}
	for _, sc := range cfg.Stores {
		if err := declare(sc.Name); err != nil {
			return nil, err
		}
		var indexes []vstore.IndexDescriptor
		for _, ic := range sc.Indexes {
			keyPath := ic.KeyPath
			if len(keyPath) == 0 {
				keyPath = []string{ic.Name}
			}
			idx := vstore.NewIndex(ic.Name, keyPath...)
			if ic.Unique {
				idx = idx.Unique()
			}
			if ic.Multi {
				idx = idx.MultiEntry()
			}
			indexes = append(indexes, idx)
		}
		scm.AddStore(sc.Name, indexes...)
	}
	for _, name := range cfg.Objects {
		if err := declare(name); err != nil {
			return nil, err
		}
		scm.AddObject(name)
	}
	return scm, nil
}

func (cfg *config) options() vstore.Options {
	return vstore.Options{
		Logger:          logger,
		PollInterval:    cfg.PollInterval,
		PollAttempts:    cfg.PollAttempts,
		UpgradeTimeout:  cfg.UpgradeTimeout,
		StrictReadiness: cfg.StrictReadiness,
	}
}
