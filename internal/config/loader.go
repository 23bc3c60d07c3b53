package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// FileName is the config file base name looked up when none is given.
const FileName = "alertbench"

// NewViper returns a viper instance with defaults set and the config file
// search path configured: cfgFile when given, otherwise alertbench.yaml in
// the working directory and then in ~/.alertbench.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
		return v, nil
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "."+FileName))
	}
	return v, nil
}

// ReadInConfig reads the configured file. A missing file is not an error
// unless it was named explicitly.
func ReadInConfig(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && !explicit {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// Load builds the configuration from defaults, the config file and the
// environment.
func Load(cfgFile string) (*Config, error) {
	v, err := NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := ReadInConfig(v, cfgFile != ""); err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}
