// Package cfg loads service settings from a .env file, an optional YAML
// config file and environment variables, in increasing order of precedence.
package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"riskform/internal/common"
)

type Settings struct {
	HTTPPort             int
	ModelPath            string
	ModelBackend         string
	PredictionMode       string
	PositiveClass        int
	Explainer            string
	PythonPath           string
	BridgeScript         string
	ONNX                 ONNXSettings
	RemoteURL            string
	PredictTimeout       time.Duration
	CodebookPath         string
	DataPath             string
	PlotDir              string
	AttributionStatsPath string
	HistoryLimit         int
	LogLevel             string
	LogFormat            string
}

type ONNXSettings struct {
	LibraryPath string `yaml:"libraryPath"`
	Input       string `yaml:"input"`
	LabelOutput string `yaml:"labelOutput"`
	ProbaOutput string `yaml:"probaOutput"`
}

type ConfigFile struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Model struct {
		Path           string `yaml:"path"`
		Backend        string `yaml:"backend"`
		Mode           string `yaml:"mode"`
		PositiveClass  *int   `yaml:"positiveClass"`
		Explainer      string `yaml:"explainer"`
		PredictTimeout string `yaml:"predictTimeout"`
		Python         struct {
			Path   string `yaml:"path"`
			Script string `yaml:"script"`
		} `yaml:"python"`
		ONNX   ONNXSettings `yaml:"onnx"`
		Remote struct {
			URL string `yaml:"url"`
		} `yaml:"remote"`
	} `yaml:"model"`

	Form struct {
		CodebookPath string `yaml:"codebookPath"`
	} `yaml:"form"`

	Storage struct {
		DataPath         string `yaml:"dataPath"`
		PlotDir          string `yaml:"plotDir"`
		AttributionStats string `yaml:"attributionStats"`
		HistoryLimit     int    `yaml:"historyLimit"`
	} `yaml:"storage"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load() (Settings, error) {
	// A missing .env is normal; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout := 10 * time.Second
	if config.Model.PredictTimeout != "" {
		timeout, err = time.ParseDuration(config.Model.PredictTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid model.predictTimeout %q: %w", config.Model.PredictTimeout, err)
		}
	}

	positiveClass := common.DefaultPositiveClass
	if config.Model.PositiveClass != nil {
		positiveClass = *config.Model.PositiveClass
	}

	onnx := config.Model.ONNX
	settings := Settings{
		HTTPPort:       getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.Port, common.DefaultHTTPPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelBackend:   getEnvOrDefault(common.EnvModelBackend, orDefault(config.Model.Backend, common.DefaultModelBackend)),
		PredictionMode: getEnvOrDefault(common.EnvPredictionMode, orDefault(config.Model.Mode, common.DefaultPredictionMode)),
		PositiveClass:  getIntOrDefault(common.EnvPositiveClass, positiveClass),
		Explainer:      getEnvOrDefault(common.EnvExplainer, orDefault(config.Model.Explainer, common.DefaultExplainer)),
		PythonPath:     getEnvOrDefault(common.EnvPythonPath, config.Model.Python.Path),
		BridgeScript:   getEnvOrDefault(common.EnvBridgeScript, config.Model.Python.Script),
		ONNX: ONNXSettings{
			LibraryPath: getEnvOrDefault(common.EnvONNXLibraryPath, onnx.LibraryPath),
			Input:       getEnvOrDefault(common.EnvONNXInput, orDefault(onnx.Input, common.DefaultONNXInput)),
			LabelOutput: getEnvOrDefault(common.EnvONNXLabelOutput, orDefault(onnx.LabelOutput, common.DefaultONNXLabel)),
			ProbaOutput: getEnvOrDefault(common.EnvONNXProbaOutput, orDefault(onnx.ProbaOutput, common.DefaultONNXProba)),
		},
		RemoteURL:            getEnvOrDefault(common.EnvRemoteURL, config.Model.Remote.URL),
		PredictTimeout:       getDurationOrDefault(common.EnvPredictTimeout, timeout),
		CodebookPath:         getEnvOrDefault(common.EnvCodebookPath, config.Form.CodebookPath),
		DataPath:             getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		PlotDir:              getEnvOrDefault(common.EnvPlotDir, config.Storage.PlotDir),
		AttributionStatsPath: getEnvOrDefault(common.EnvAttributionStatsPath, config.Storage.AttributionStats),
		HistoryLimit:         getIntFromEnvOrConfig(common.EnvHistoryLimit, config.Storage.HistoryLimit, common.DefaultHistoryLimit),
		LogLevel:             getEnvOrDefault(common.EnvLogLevel, orDefault(config.Log.Level, common.DefaultLogLevel)),
		LogFormat:            getEnvOrDefault(common.EnvLogFormat, orDefault(config.Log.Format, common.DefaultLogFormat)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		HTTPPort:       getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelBackend:   getEnvOrDefault(common.EnvModelBackend, common.DefaultModelBackend),
		PredictionMode: getEnvOrDefault(common.EnvPredictionMode, common.DefaultPredictionMode),
		PositiveClass:  getIntOrDefault(common.EnvPositiveClass, common.DefaultPositiveClass),
		Explainer:      getEnvOrDefault(common.EnvExplainer, common.DefaultExplainer),
		PythonPath:     os.Getenv(common.EnvPythonPath),   // discovered when empty
		BridgeScript:   os.Getenv(common.EnvBridgeScript), // embedded script when empty
		ONNX: ONNXSettings{
			LibraryPath: os.Getenv(common.EnvONNXLibraryPath),
			Input:       getEnvOrDefault(common.EnvONNXInput, common.DefaultONNXInput),
			LabelOutput: getEnvOrDefault(common.EnvONNXLabelOutput, common.DefaultONNXLabel),
			ProbaOutput: getEnvOrDefault(common.EnvONNXProbaOutput, common.DefaultONNXProba),
		},
		RemoteURL:            os.Getenv(common.EnvRemoteURL),
		PredictTimeout:       getDurationOrDefault(common.EnvPredictTimeout, 10*time.Second),
		CodebookPath:         os.Getenv(common.EnvCodebookPath), // built-in codebook when empty
		DataPath:             os.Getenv(common.EnvDataPath),     // history disabled when empty
		PlotDir:              os.Getenv(common.EnvPlotDir),
		AttributionStatsPath: os.Getenv(common.EnvAttributionStatsPath),
		HistoryLimit:         getIntOrDefault(common.EnvHistoryLimit, common.DefaultHistoryLimit),
		LogLevel:             getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:            getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// NeedsExplainer reports whether the configured mode computes attributions.
func (s *Settings) NeedsExplainer() bool {
	return s.PredictionMode == "probability"
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.HTTPPort < common.MinHTTPPort || settings.HTTPPort > common.MaxHTTPPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinHTTPPort, common.MaxHTTPPort, settings.HTTPPort)
	}

	switch settings.PredictionMode {
	case "label", "probability":
	default:
		return fmt.Errorf("prediction mode must be label or probability, got %q", settings.PredictionMode)
	}
	if settings.PositiveClass < 0 || settings.PositiveClass > common.MaxPositiveClass {
		return fmt.Errorf("positive class must be between 0 and %d, got %d", common.MaxPositiveClass, settings.PositiveClass)
	}

	switch settings.Explainer {
	case common.ExplainerModel, common.ExplainerOcclusion:
	default:
		return fmt.Errorf("explainer must be %s or %s, got %q", common.ExplainerModel, common.ExplainerOcclusion, settings.Explainer)
	}

	switch settings.ModelBackend {
	case common.BackendPython:
		if settings.ModelPath == "" {
			return errors.New(common.ErrMsgModelPathRequired)
		}
	case common.BackendONNX:
		if settings.ModelPath == "" {
			return errors.New(common.ErrMsgModelPathRequired)
		}
		if settings.NeedsExplainer() && settings.Explainer == common.ExplainerModel {
			return errors.New(common.ErrMsgONNXNeedsExplainer)
		}
	case common.BackendRemote:
		if settings.RemoteURL == "" {
			return errors.New(common.ErrMsgRemoteURLRequired)
		}
	default:
		return fmt.Errorf("model backend must be python, onnx or remote, got %q", settings.ModelBackend)
	}

	if settings.PredictTimeout < 100*time.Millisecond || settings.PredictTimeout > 5*time.Minute {
		return fmt.Errorf("predict timeout must be between 100ms and 5m, got %v", settings.PredictTimeout)
	}
	if settings.HistoryLimit <= 0 || settings.HistoryLimit > common.MaxHistoryLimit {
		return fmt.Errorf("history limit must be between 1 and %d, got %d", common.MaxHistoryLimit, settings.HistoryLimit)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	switch settings.LogFormat {
	case common.LogFormatJSON, common.LogFormatConsole:
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
