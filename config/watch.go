package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch re-reads the config file on every write and hands valid results to
// onChange. Invalid edits are logged and skipped. There is no way to stop it;
// it lives as long as the process.
func Watch(path string, logger *zap.Logger, onChange func(*Config)) error {
	if path == "" {
		return errors.New("watch config: no file given")
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	logger = logger.Named("config")

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config change ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
