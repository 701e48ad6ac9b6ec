package common

// Environment variable keys
const (
	EnvConfigFile           = "CONFIG_FILE"
	EnvHTTPPort             = "HTTP_PORT"
	EnvModelPath            = "MODEL_PATH"
	EnvModelBackend         = "MODEL_BACKEND"
	EnvPredictionMode       = "PREDICTION_MODE"
	EnvPositiveClass        = "POSITIVE_CLASS"
	EnvExplainer            = "EXPLAINER"
	EnvPythonPath           = "PYTHON_PATH"
	EnvBridgeScript         = "BRIDGE_SCRIPT"
	EnvONNXLibraryPath      = "ONNX_LIBRARY_PATH"
	EnvONNXInput            = "ONNX_INPUT"
	EnvONNXLabelOutput      = "ONNX_LABEL_OUTPUT"
	EnvONNXProbaOutput      = "ONNX_PROBA_OUTPUT"
	EnvRemoteURL            = "REMOTE_URL"
	EnvPredictTimeout       = "PREDICT_TIMEOUT"
	EnvCodebookPath         = "CODEBOOK_PATH"
	EnvDataPath             = "DATA_PATH"
	EnvPlotDir              = "PLOT_DIR"
	EnvAttributionStatsPath = "ATTRIBUTION_STATS_PATH"
	EnvHistoryLimit         = "HISTORY_LIMIT"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogFormat            = "LOG_FORMAT"
)

// Model backends
const (
	BackendPython = "python"
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Explainer sources
const (
	ExplainerModel     = "model"
	ExplainerOcclusion = "occlusion"
)

// Log formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Configuration defaults
const (
	DefaultHTTPPort       = 8080
	DefaultModelPath      = "models/catboost_model.pkl"
	DefaultModelBackend   = BackendPython
	DefaultPredictionMode = "probability"
	DefaultPositiveClass  = 1
	DefaultExplainer      = ExplainerModel
	DefaultONNXInput      = "features"
	DefaultONNXLabel      = "label"
	DefaultONNXProba      = "probabilities"
	DefaultHistoryLimit   = 50
	DefaultLogLevel       = "info"
	DefaultLogFormat      = LogFormatJSON
)

// Common error messages
const (
	ErrMsgModelPathRequired  = "model path is required for the python and onnx backends"
	ErrMsgRemoteURLRequired  = "remote URL is required for the remote backend"
	ErrMsgONNXNeedsExplainer = "the onnx backend has no native explainer; use EXPLAINER=occlusion in probability mode"
)

// Validation constants
const (
	MinHTTPPort      = 1024
	MaxHTTPPort      = 65535
	MaxPositiveClass = 1
	MaxHistoryLimit  = 1000
)
