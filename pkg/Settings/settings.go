package Settings

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var config Config

func GetConfig() Config {
	return config
}

// ReadConfig loads a .toml, .yaml or .yml file and fills defaults. An
// empty path leaves only defaults. Validation is left to Apply, once
// command line overrides are in.
func ReadConfig(configPath string) error {
	var c Config
	if configPath != "" {
		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			data, err := os.ReadFile(configPath)
			if err != nil {
				return errors.Wrap(err, "read config")
			}
			if err = yaml.Unmarshal(data, &c); err != nil {
				return errors.Wrapf(err, "parse yaml config %s", configPath)
			}
		default:
			if _, err := toml.DecodeFile(configPath, &c); err != nil {
				return errors.Wrapf(err, "parse toml config %s", configPath)
			}
		}
	}
	c.fixme()
	config = c
	return nil
}

// Apply edits the loaded config and validates the result.
func Apply(edit func(c *Config)) error {
	c := config
	if edit != nil {
		edit(&c)
	}
	c.fixme()
	if err := c.Validate(); err != nil {
		return err
	}
	config = c
	return nil
}
