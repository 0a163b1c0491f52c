package repo

import (
	"bytes"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AppName = "stablegas"

	CfgFileName        = "config.toml"
	GenesisCfgFileName = "genesis.toml"
	LogsDirName        = "logs"

	rootPathEnvName = "STABLEGAS_PATH"
)

type Repo struct {
	RepoRoot      string
	Config        *Config
	GenesisConfig *GenesisConfig
}

// Default builds a repo with default config in memory, without touching disk.
func Default(repoRoot string) (*Repo, error) {
	return &Repo{
		RepoRoot:      repoRoot,
		Config:        defaultConfig(),
		GenesisConfig: defaultGenesisConfig(),
	}, nil
}

// Load reads config files from repoRoot, falling back to defaults for
// files that do not exist.
func Load(repoRoot string) (*Repo, error) {
	repoRoot, err := LoadRepoRootFromEnv(repoRoot)
	if err != nil {
		return nil, err
	}

	config := defaultConfig()
	cfgPath := path.Join(repoRoot, CfgFileName)
	if FileExist(cfgPath) {
		if err := readConfigFromFile(cfgPath, config); err != nil {
			return nil, err
		}
	}

	genesisConfig := defaultGenesisConfig()
	genesisCfgPath := path.Join(repoRoot, GenesisCfgFileName)
	if FileExist(genesisCfgPath) {
		if err := readConfigFromFile(genesisCfgPath, genesisConfig); err != nil {
			return nil, err
		}
	}
	if err := genesisConfig.Validate(); err != nil {
		return nil, err
	}

	return &Repo{
		RepoRoot:      repoRoot,
		Config:        config,
		GenesisConfig: genesisConfig,
	}, nil
}

// Flush writes the current config and genesis config to disk.
func (r *Repo) Flush() error {
	if err := os.MkdirAll(r.RepoRoot, 0755); err != nil {
		return err
	}
	if err := writeConfig(path.Join(r.RepoRoot, CfgFileName), r.Config); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	if err := writeConfig(path.Join(r.RepoRoot, GenesisCfgFileName), r.GenesisConfig); err != nil {
		return errors.Wrap(err, "failed to write genesis config")
	}
	return nil
}

func writeConfig(cfgPath string, config any) error {
	raw, err := MarshalConfig(config)
	if err != nil {
		return err
	}

	return os.WriteFile(cfgPath, []byte(raw), 0644)
}

func MarshalConfig(config any) (string, error) {
	buf := bytes.NewBuffer([]byte{})
	e := toml.NewEncoder(buf)
	e.SetIndentTables(true)
	e.SetArraysMultiline(true)
	if err := e.Encode(config); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func LoadRepoRootFromEnv(repoRoot string) (string, error) {
	if repoRoot != "" {
		return repoRoot, nil
	}
	repoRoot = os.Getenv(rootPathEnvName)
	if repoRoot != "" {
		return repoRoot, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return path.Join(homeDir, "."+AppName), nil
}

func readConfigFromFile(cfgFilePath string, config any) error {
	vp := viper.New()
	vp.SetConfigFile(cfgFilePath)
	vp.SetConfigType("toml")

	// only check types, viper does not have a strong type checking
	raw, err := os.ReadFile(cfgFilePath)
	if err != nil {
		return err
	}
	decoder := toml.NewDecoder(bytes.NewBuffer(raw))
	checker := reflect.New(reflect.TypeOf(config).Elem())
	if err := decoder.Decode(checker.Interface()); err != nil {
		var decodeError *toml.DecodeError
		if errors.As(err, &decodeError) {
			return errors.Errorf("check config formater failed from %s:\n%s", cfgFilePath, decodeError.String())
		}

		return errors.Wrapf(err, "check config formater failed from %s", cfgFilePath)
	}

	return readConfig(vp, config)
}

func readConfig(vp *viper.Viper, config any) error {
	vp.AutomaticEnv()
	if _, ok := config.(*GenesisConfig); ok {
		vp.SetEnvPrefix("STABLEGAS_GENESIS")
	} else {
		vp.SetEnvPrefix("STABLEGAS")
	}
	replacer := strings.NewReplacer(".", "_")
	vp.SetEnvKeyReplacer(replacer)

	if err := vp.ReadInConfig(); err != nil {
		return err
	}

	return vp.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		StringToTimeDurationHookFunc(),
		func(
			f reflect.Kind,
			t reflect.Kind,
			data any) (any, error) {
			if f != reflect.String || t != reflect.Slice {
				return data, nil
			}

			raw := data.(string)
			if raw == "" {
				return []string{}, nil
			}
			raw = strings.TrimPrefix(raw, ";")
			raw = strings.TrimSuffix(raw, ";")

			return strings.Split(raw, ";"), nil
		},
	)))
}

func FileExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
