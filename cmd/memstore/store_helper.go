package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"memstore/internal/config"
	memerrors "memstore/internal/errors"
	"memstore/internal/memory"
	"memstore/internal/slogutil"
)

var (
	serviceOnce   sync.Once
	sharedService *memory.Service
	serviceErr    error
	logCloser     io.Closer
)

// loadConfig resolves the config from --config, --data-dir and the environment.
func loadConfig() (*config.LoadResult, error) {
	return config.Load(configPathFlag, dataDirFlag)
}

// getService returns the shared memory service, building it on first use.
func getService() (*memory.Service, error) {
	serviceOnce.Do(func() {
		result, err := loadConfig()
		if err != nil {
			serviceErr = err
			return
		}

		logger, closer, err := slogutil.Build(result.Config.Logging, slogutil.Options{
			Console:  os.Stderr,
			Override: logLevelFlag,
		})
		if err != nil {
			serviceErr = fmt.Errorf("failed to set up logging: %w", err)
			return
		}
		logCloser = closer

		if result.UsedDefaults {
			logger.Debug("No config file found, using defaults", "data_dir", result.Config.DataDir)
		} else {
			logger.Debug("Loaded config", "path", result.ConfigPath)
		}

		sharedService, serviceErr = memory.New(result.Config, logger, memory.Options{})
	})
	return sharedService, serviceErr
}

// closeService releases every open scope database and the log file.
func closeService() {
	if sharedService != nil {
		if err := sharedService.CloseAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
}

// newContext returns a context cancelled on interrupt.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// readInput resolves a JSON argument: "-" reads stdin, "@path" reads a
// file, anything else is taken literally.
func readInput(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}

// decodeInput reads arg with readInput and decodes it as JSON into v.
func decodeInput(arg string, stdin io.Reader, v interface{}) error {
	data, err := readInput(arg, stdin)
	if err != nil {
		return memerrors.New(memerrors.InvalidInput, "failed to read input", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return memerrors.New(memerrors.InvalidInput, "invalid JSON input", err)
	}
	return nil
}
