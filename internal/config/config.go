// Package config loads cellcount settings from defaults, an optional YAML file,
// CELLCOUNT_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ironsheep/cellcount-mcp/internal/detection"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
	"github.com/ironsheep/cellcount-mcp/internal/logging"
)

// EnvPrefix is prepended to every environment variable, e.g. CELLCOUNT_MODEL_PATH.
const EnvPrefix = "CELLCOUNT"

// FileName is the config file looked up in the working and user config directories.
const FileName = "cellcount"

// Settings holds every tunable value.
type Settings struct {
	Model struct {
		Path     string        // model weights, handed to the serving process
		Endpoint string        // base URL of the model-serving process
		Timeout  time.Duration // per-request timeout
	}

	Detect struct {
		Conf       float64 // confidence threshold
		IOU        float64 // overlap suppression threshold
		Labels     bool    // draw class names on overlays
		Confidence bool    // draw confidence on overlays
		LineWidth  int     // overlay box outline width
	}

	Batch struct {
		Workers         int  // images in flight, 0 = GOMAXPROCS
		ConcurrentModel bool // model backend accepts parallel calls
	}

	Log struct {
		Level string
	}

	Server struct {
		ResultTTL time.Duration // how long detect results stay addressable by id
	}
}

// setDefaults registers the default value of every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model.path", "models/best.pt")
	v.SetDefault("model.endpoint", "http://127.0.0.1:8765")
	v.SetDefault("model.timeout", inference.DefaultTimeout)

	v.SetDefault("detect.conf", detection.DefaultConfThreshold)
	v.SetDefault("detect.iou", detection.DefaultIOUThreshold)
	v.SetDefault("detect.labels", true)
	v.SetDefault("detect.confidence", true)
	v.SetDefault("detect.linewidth", 2)

	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.concurrentmodel", false)

	v.SetDefault("log.level", "info")

	v.SetDefault("server.resultttl", 30*time.Minute)
}

// New returns a viper instance with defaults and environment lookup configured.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"model":            "model.path",
	"endpoint":         "model.endpoint",
	"timeout":          "model.timeout",
	"conf":             "detect.conf",
	"iou":              "detect.iou",
	"workers":          "batch.workers",
	"concurrent-model": "batch.concurrentmodel",
	"log-level":        "log.level",
	"result-ttl":       "server.resultttl",
}

// BindFlags binds every known flag present in fs to its config key. Flags that
// fs does not define are ignored.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("error binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load reads the config file, if any, and returns the validated settings.
//
// When file is empty, "cellcount.yaml" is searched for in the working directory
// and in the user config directory; a missing file is not an error. An explicitly
// named file must exist.
func Load(v *viper.Viper, file string) (*Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cellcount"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Validate rejects settings that would fail later in the pipeline.
func (s *Settings) Validate() error {
	if err := s.DetectOptions().Validate(); err != nil {
		return err
	}
	if s.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative, got %d", s.Batch.Workers)
	}
	if s.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive, got %s", s.Model.Timeout)
	}
	if s.Server.ResultTTL <= 0 {
		return fmt.Errorf("server.resultttl must be positive, got %s", s.Server.ResultTTL)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return err
	}
	return nil
}

// DetectOptions returns the per-image detection options.
func (s *Settings) DetectOptions() detection.Options {
	return detection.Options{
		ConfThreshold: s.Detect.Conf,
		IOUThreshold:  s.Detect.IOU,
		ShowLabels:    s.Detect.Labels,
		ShowConf:      s.Detect.Confidence,
		LineWidth:     s.Detect.LineWidth,
	}
}

// ClientConfig returns the model-serving client configuration.
func (s *Settings) ClientConfig() inference.ClientConfig {
	return inference.ClientConfig{
		ModelPath: s.Model.Path,
		Endpoint:  s.Model.Endpoint,
		Timeout:   s.Model.Timeout,
	}
}
