package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PythonConfig configures the pickled-model bridge.
type PythonConfig struct {
	ModelPath     string
	PythonPath    string // discovered when empty
	ScriptPath    string // embedded script is written next to the model when empty
	Columns       []string
	PositiveClass int
	Timeout       time.Duration
	StartTimeout  time.Duration
}

// PythonBridge keeps one Python worker alive that loaded the model once and
// answers one JSON request per line. Calls are serialized over the pipes.
type PythonBridge struct {
	cfg PythonConfig

	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	lines        chan lineResult
	done         chan struct{}
	featureNames []string
}

type lineResult struct {
	data []byte
	err  error
}

// NewPythonBridge starts the worker and waits until the model is loaded.
func NewPythonBridge(cfg PythonConfig) (*PythonBridge, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model artifact not accessible: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 60 * time.Second
	}

	if cfg.PythonPath == "" {
		path, err := findPython()
		if err != nil {
			return nil, err
		}
		cfg.PythonPath = path
	}

	if cfg.ScriptPath == "" {
		cfg.ScriptPath = filepath.Join(filepath.Dir(cfg.ModelPath), "riskform_bridge.py")
		if err := createBridgeScript(cfg.ScriptPath); err != nil {
			return nil, fmt.Errorf("failed to write bridge script: %w", err)
		}
	}

	b := &PythonBridge{cfg: cfg}
	if err := b.start(); err != nil {
		return nil, err
	}

	log.Info().
		Str("model_path", cfg.ModelPath).
		Str("python_path", cfg.PythonPath).
		Str("script_path", cfg.ScriptPath).
		Strs("feature_names", b.featureNames).
		Msg("Python model bridge ready")

	return b, nil
}

// FeatureNames returns the column names stored in the model artifact, if any.
func (b *PythonBridge) FeatureNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.featureNames...)
}

func (b *PythonBridge) Predict(ctx context.Context, rows [][]float64) ([]string, error) {
	resp, err := b.call(ctx, opPredict, rows)
	if err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(rows) {
		return nil, fmt.Errorf("expected %d labels, got %d", len(rows), len(resp.Labels))
	}
	return resp.Labels, nil
}

func (b *PythonBridge) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	resp, err := b.call(ctx, opPredictProba, rows)
	if err != nil {
		return nil, err
	}
	if len(resp.Probabilities) != len(rows) {
		return nil, fmt.Errorf("expected %d probability rows, got %d", len(rows), len(resp.Probabilities))
	}
	return resp.Probabilities, nil
}

func (b *PythonBridge) Explain(ctx context.Context, rows [][]float64) (Explanation, error) {
	resp, err := b.call(ctx, opExplain, rows)
	if err != nil {
		return Explanation{}, err
	}
	return resp.explanation()
}

// Close stops the worker.
func (b *PythonBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	return nil
}

func (b *PythonBridge) start() error {
	cmd := exec.Command(b.cfg.PythonPath, b.cfg.ScriptPath, b.cfg.ModelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("bridge stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start python bridge: %w", err)
	}

	lines := make(chan lineResult, 1)
	done := make(chan struct{})
	go readLines(stdout, lines, done)
	go logStderr(stderr, cmd.Process.Pid)

	b.cmd = cmd
	b.stdin = stdin
	b.lines = lines
	b.done = done

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StartTimeout)
	defer cancel()

	resp, err := b.receive(ctx)
	if err != nil {
		b.stopLocked()
		return fmt.Errorf("python bridge did not become ready: %w", err)
	}
	if resp.Error != "" || !resp.Ready {
		b.stopLocked()
		return fmt.Errorf("python bridge failed to load model: %s", resp.Error)
	}
	b.featureNames = resp.FeatureNames
	return nil
}

func (b *PythonBridge) call(ctx context.Context, op string, rows [][]float64) (*bridgeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd == nil {
		log.Warn().Str("model_path", b.cfg.ModelPath).Msg("Python bridge not running, restarting worker")
		if err := b.start(); err != nil {
			return nil, err
		}
	}

	req, err := json.Marshal(bridgeRequest{
		Op:            op,
		Columns:       b.cfg.Columns,
		Rows:          rows,
		PositiveClass: b.cfg.PositiveClass,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if _, err := b.stdin.Write(append(req, '\n')); err != nil {
		b.stopLocked()
		return nil, fmt.Errorf("failed to send request to python bridge: %w", err)
	}

	resp, err := b.receive(ctx)
	if err != nil {
		// The worker may still be busy with the abandoned request; replace it.
		b.stopLocked()
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python bridge error: %s", resp.Error)
	}
	return resp, nil
}

func (b *PythonBridge) receive(ctx context.Context) (*bridgeResponse, error) {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("python bridge timed out: %w", ctx.Err())
		}
		return nil, ctx.Err()
	case line, ok := <-b.lines:
		if !ok {
			return nil, errors.New("python bridge exited")
		}
		if line.err != nil {
			return nil, fmt.Errorf("python bridge exited: %w", line.err)
		}
		var resp bridgeResponse
		if err := json.Unmarshal(line.data, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse bridge response %q: %w", strings.TrimSpace(string(line.data)), err)
		}
		return &resp, nil
	}
}

func (b *PythonBridge) stopLocked() {
	if b.cmd == nil {
		return
	}
	close(b.done)
	_ = b.stdin.Close()
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	cmd := b.cmd
	go func() { _ = cmd.Wait() }()
	b.cmd = nil
	b.stdin = nil
	b.lines = nil
	b.done = nil
}

func readLines(r io.Reader, out chan<- lineResult, done <-chan struct{}) {
	defer close(out)
	br := bufio.NewReader(r)
	for {
		data, err := br.ReadBytes('\n')
		if len(data) > 0 {
			select {
			case out <- lineResult{data: data}:
			case <-done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				select {
				case out <- lineResult{err: err}:
				case <-done:
				}
			}
			return
		}
	}
}

func logStderr(r io.Reader, pid int) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Int("pid", pid).Str("stderr", sc.Text()).Msg("python bridge")
	}
}

func findPython() (string, error) {
	check := func(path string) bool {
		cmd := exec.Command(path, "-c", "import sys, pandas; print('Python', sys.version)")
		output, err := cmd.Output()
		return err == nil && strings.Contains(string(output), "Python 3")
	}

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil && check(p) {
				log.Info().Str("python_path", p).Msg("Using virtual environment Python")
				return p, nil
			}
		}
	}

	for _, root := range []string{".", ".."} {
		for _, p := range []string{
			filepath.Join(root, "venv", "bin", "python3"),
			filepath.Join(root, ".venv", "bin", "python3"),
		} {
			if _, err := os.Stat(p); err == nil && check(p) {
				log.Info().Str("python_path", p).Msg("Using project virtual environment Python")
				return p, nil
			}
		}
	}

	for _, candidate := range []string{"python3", "python"} {
		if p, err := exec.LookPath(candidate); err == nil && check(p) {
			log.Info().Str("python_path", p).Msg("Using system Python")
			return p, nil
		}
	}

	return "", fmt.Errorf("no Python 3 with pandas found; set PYTHON_PATH")
}

func createBridgeScript(scriptPath string) error {
	return os.WriteFile(scriptPath, []byte(bridgeScript), 0o755)
}

const bridgeScript = `#!/usr/bin/env python3
"""riskform model bridge.

Loads a pickled classifier once, then answers one JSON request per stdin line
with one JSON response per stdout line.
"""
import json
import pickle
import sys


def respond(payload):
    sys.stdout.write(json.dumps(payload) + "\n")
    sys.stdout.flush()


def to_label(value):
    if hasattr(value, "item"):
        value = value.item()
    if isinstance(value, float) and value.is_integer():
        value = int(value)
    return str(value)


def explain(model, frame, positive_class):
    import numpy as np
    import shap

    explainer = shap.TreeExplainer(model)
    values = explainer.shap_values(frame)
    expected = explainer.expected_value
    per_class = isinstance(values, list)
    if per_class:
        values = values[positive_class]
        expected = np.ravel(expected)[positive_class]
    values = np.asarray(values, dtype=float)
    if values.ndim == 3:
        values = values[:, :, positive_class]
        expected = np.ravel(expected)[positive_class]
    elif not per_class and positive_class == 0:
        # binary models explain class 1 in log-odds; class 0 is the negation
        values = -values
        expected = -np.ravel(expected)[0]
    return values.tolist(), float(np.ravel(expected)[0])


def handle(model, request):
    import numpy as np
    import pandas as pd

    frame = pd.DataFrame(request["rows"], columns=request["columns"])
    op = request.get("op")
    if op == "predict":
        return {"labels": [to_label(v) for v in np.ravel(model.predict(frame))]}
    if op == "predict_proba":
        return {"probabilities": [[float(p) for p in row] for row in model.predict_proba(frame)]}
    if op == "explain":
        attributions, expected = explain(model, frame, int(request.get("positive_class", 1)))
        return {"attributions": attributions, "expected_value": expected}
    raise ValueError("unknown op %r" % op)


def main():
    if len(sys.argv) != 2:
        respond({"error": "usage: riskform_bridge.py <model_path>"})
        sys.exit(1)

    try:
        with open(sys.argv[1], "rb") as f:
            model = pickle.load(f)
    except Exception as e:
        respond({"error": "load model: %s" % e})
        sys.exit(1)

    names = getattr(model, "feature_names_", None)
    respond({"ready": True, "feature_names": [str(n) for n in names] if names else []})

    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            respond(handle(model, json.loads(line)))
        except Exception as e:
            respond({"error": str(e)})


if __name__ == "__main__":
    main()
`
