package loggers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stablegas/stablegas/pkg/repo"
)

const (
	App            = "app"
	Ledger         = "ledger"
	Storage        = "storage"
	SystemContract = "system_contract"
)

var w = &LoggerWrapper{
	loggers: map[string]*logrus.Entry{
		App:            newWithModule(App),
		Ledger:         newWithModule(Ledger),
		Storage:        newWithModule(Storage),
		SystemContract: newWithModule(SystemContract),
	},
}

type LoggerWrapper struct {
	loggers map[string]*logrus.Entry
}

func newWithModule(name string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&formatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
	return logger.WithField("module", name)
}

func Initialize(rep *repo.Repo, persist bool) error {
	config := rep.Config

	var out *os.File = os.Stdout
	if persist && config.Log.Filename != "" {
		logDir := filepath.Join(rep.RepoRoot, repo.LogsDirName)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("log initialize: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, config.Log.Filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("log initialize: %w", err)
		}
		out = f
	}

	m := make(map[string]*logrus.Entry)
	for name, level := range map[string]string{
		App:            config.Log.Level,
		Ledger:         config.Log.Module.Ledger,
		Storage:        config.Log.Module.Storage,
		SystemContract: config.Log.Module.SystemContract,
	} {
		entry := newWithModule(name)
		entry.Logger.SetOutput(out)
		entry.Logger.SetReportCaller(config.Log.ReportCaller)
		entry.Logger.SetLevel(ParseLevel(level))
		m[name] = entry
	}

	w = &LoggerWrapper{loggers: m}
	return nil
}

func Logger(name string) logrus.FieldLogger {
	return w.loggers[name]
}

func ParseLevel(level string) logrus.Level {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lv
}

type formatter struct{}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	module, _ := entry.Data["module"].(string)
	var fields []string
	for k, v := range entry.Data {
		if k == "module" {
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%v", k, v))
	}
	line := fmt.Sprintf("%s [%s] [%s] %s",
		entry.Time.Format(time.RFC3339), strings.ToUpper(entry.Level.String()), module, entry.Message)
	if len(fields) > 0 {
		line += " " + strings.Join(fields, " ")
	}
	return []byte(line + "\n"), nil
}
