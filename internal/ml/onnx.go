package ml

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures an exported classifier. CatBoost exports name the
// input "features" and the outputs "label" and "probabilities".
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	LabelOutput string
	ProbaOutput string
	Columns     int
}

// ONNXClassifier runs an exported model in-process. The session binds fixed
// tensors, so calls are serialized.
type ONNXClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	label   *ort.Tensor[int64]
	proba   *ort.Tensor[float32]
	width   int
}

func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if cfg.InputName == "" {
		cfg.InputName = "features"
	}
	if cfg.LabelOutput == "" {
		cfg.LabelOutput = "label"
	}
	if cfg.ProbaOutput == "" {
		cfg.ProbaOutput = "probabilities"
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputs, _, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read onnx model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 model input, got %d", len(inputs))
	}
	dims := inputs[0].Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("expected a 2-D model input, got shape %v", dims)
	}
	if dims[1] > 0 && cfg.Columns > 0 && int(dims[1]) != cfg.Columns {
		return nil, fmt.Errorf("model input has %d columns, feature order has %d", dims[1], cfg.Columns)
	}
	width := cfg.Columns
	if width <= 0 {
		width = int(dims[1])
	}

	c := &ONNXClassifier{width: width}
	if c.input, err = ort.NewTensor(ort.NewShape(1, int64(width)), make([]float32, width)); err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	if c.label, err = ort.NewEmptyTensor[int64](ort.NewShape(1)); err != nil {
		c.destroy()
		return nil, fmt.Errorf("allocate label tensor: %w", err)
	}
	if c.proba, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 2)); err != nil {
		c.destroy()
		return nil, fmt.Errorf("allocate probability tensor: %w", err)
	}

	c.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.LabelOutput, cfg.ProbaOutput},
		[]ort.Value{c.input}, []ort.Value{c.label, c.proba}, nil)
	if err != nil {
		c.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Info().Str("model_path", cfg.ModelPath).Int("columns", width).Msg("ONNX model loaded successfully")
	return c, nil
}

// Width is the number of input columns the model takes.
func (c *ONNXClassifier) Width() int { return c.width }

func (c *ONNXClassifier) Predict(ctx context.Context, rows [][]float64) ([]string, error) {
	out := make([]string, len(rows))
	err := c.each(ctx, rows, func(i int) {
		out[i] = strconv.FormatInt(c.label.GetData()[0], 10)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ONNXClassifier) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	err := c.each(ctx, rows, func(i int) {
		p := c.proba.GetData()
		out[i] = []float64{float64(p[0]), float64(p[1])}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ONNXClassifier) each(ctx context.Context, rows [][]float64, collect func(i int)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("onnx session is closed")
	}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(row) != c.width {
			return fmt.Errorf("expected %d features, got %d", c.width, len(row))
		}
		in := c.input.GetData()
		for j, v := range row {
			in[j] = float32(v)
		}
		if err := c.session.Run(); err != nil {
			return fmt.Errorf("onnx inference failed: %w", err)
		}
		collect(i)
	}
	return nil
}

// Close releases the session and tensors.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroy()
	return nil
}

func (c *ONNXClassifier) destroy() {
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	if c.input != nil {
		c.input.Destroy()
		c.input = nil
	}
	if c.label != nil {
		c.label.Destroy()
		c.label = nil
	}
	if c.proba != nil {
		c.proba.Destroy()
		c.proba = nil
	}
}
