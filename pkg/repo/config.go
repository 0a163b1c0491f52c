package repo

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

type Duration time.Duration

func (d *Duration) MarshalText() (text []byte, err error) {
	return []byte(time.Duration(*d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}

func StringToTimeDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t != reflect.TypeOf(Duration(5)) {
			return data, nil
		}

		d, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, err
		}
		return Duration(d), nil
	}
}

func (d *Duration) ToDuration() time.Duration {
	return time.Duration(*d)
}

func (d *Duration) String() string {
	return time.Duration(*d).String()
}

type Config struct {
	Log     Log     `mapstructure:"log" toml:"log"`
	Monitor Monitor `mapstructure:"monitor" toml:"monitor"`
}

type Log struct {
	Level        string    `mapstructure:"level" toml:"level"`
	Filename     string    `mapstructure:"filename" toml:"filename"`
	ReportCaller bool      `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       int64     `mapstructure:"max_age" toml:"max_age"`
	MaxSize      int64     `mapstructure:"max_size" toml:"max_size"`
	RotationTime Duration  `mapstructure:"rotation_time" toml:"rotation_time"`
	Module       LogModule `mapstructure:"module" toml:"module"`
}

type LogModule struct {
	Ledger         string `mapstructure:"ledger" toml:"ledger"`
	Storage        string `mapstructure:"storage" toml:"storage"`
	SystemContract string `mapstructure:"system_contract" toml:"system_contract"`
}

type Monitor struct {
	Enable bool  `mapstructure:"enable" toml:"enable"`
	Port   int64 `mapstructure:"port" toml:"port"`
}

func defaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:        "info",
			Filename:     "stablegas.log",
			ReportCaller: false,
			MaxAge:       30,
			MaxSize:      128,
			RotationTime: Duration(24 * time.Hour),
			Module: LogModule{
				Ledger:         "info",
				Storage:        "info",
				SystemContract: "info",
			},
		},
		Monitor: Monitor{
			Enable: false,
			Port:   40011,
		},
	}
}
