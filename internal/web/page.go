package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	t, err := template.New("form").Parse(formTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse form template: %w", err)
	}
	return &pageRenderer{tmpl: t}, nil
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("Failed to render form page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

const formTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Depression Risk in Diabetes Patients</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); margin-bottom: 20px; }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .field { padding: 8px 0; border-bottom: 1px solid #eee; }
        .field label { display: block; font-weight: 500; color: #666; margin-bottom: 4px; }
        .field input, .field select { width: 100%; padding: 6px; box-sizing: border-box; }
        .hint { font-size: 0.8em; color: #999; }
        .error { color: #dc3545; font-size: 0.85em; }
        .message { background: #f8d7da; color: #721c24; padding: 12px; border-radius: 8px; margin-bottom: 20px; }
        .result { font-size: 1.5em; text-align: center; margin: 10px 0; font-weight: bold; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        .data-table th, .data-table td { text-align: left; padding: 6px; border-bottom: 1px solid #eee; }
        .data-table th { background-color: #f8f9fa; font-weight: 600; }
        button { background: #764ba2; color: white; border: none; padding: 12px 32px; font-size: 1.1em; border-radius: 8px; cursor: pointer; }
        img.plot { max-width: 100%; }
    </style>
</head>
<body>
<div class="container">
    <div class="header"><h1>Depression Risk in Diabetes Patients</h1></div>

    {{if .Message}}<div class="message" id="message">Prediction failed: {{.Message}}</div>{{end}}

    <form method="POST" action="/predict" id="risk-form">
        <div class="grid">
            <div class="card">
                <h3>Continuous Variables</h3>
                {{range .Continuous}}
                <div class="field">
                    <label for="{{.Name}}">{{.Name}}{{if .Unit}} ({{.Unit}}){{end}}</label>
                    <input type="number" id="{{.Name}}" name="{{.Name}}" data-kind="continuous"
                           min="{{.Min}}" max="{{.Max}}" step="{{.Step}}" value="{{.Value}}">
                    <div class="hint">{{.Min}} to {{.Max}}{{if .Description}} · {{.Description}}{{end}}</div>
                    <div class="error" id="{{.Name}}-error">{{.Error}}</div>
                </div>
                {{end}}
            </div>
            <div class="card">
                <h3>Categorical Variables</h3>
                {{range .Categorical}}
                <div class="field">
                    <label for="{{.Name}}">{{.Name}}</label>
                    <select id="{{.Name}}" name="{{.Name}}" data-kind="categorical">
                        {{range .Options}}<option value="{{.Label}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
                    </select>
                    <div class="error" id="{{.Name}}-error">{{.Error}}</div>
                </div>
                {{end}}
            </div>
        </div>
        <div style="text-align: center; margin-bottom: 20px;"><button type="submit">Predict</button></div>
    </form>

    {{if .Row}}
    <div class="card">
        <h3>Input Data</h3>
        <table class="data-table">
            <thead><tr>{{range .Row}}<th>{{.Name}}</th>{{end}}</tr></thead>
            <tbody>
                <tr>{{range .Row}}<td>{{.Code}}</td>{{end}}</tr>
                <tr>{{range .Row}}<td class="hint">{{.Display}}</td>{{end}}</tr>
            </tbody>
        </table>
    </div>
    {{end}}

    {{with .Result}}
    <div class="card" id="result">
        <h3>Prediction</h3>
        {{if .IsProbability}}
        <div class="result">Predicted probability: {{.Summary}}</div>
        <div class="hint" style="text-align: center;">base value {{.BaseValue}}</div>
        {{if .PlotURL}}<img class="plot" src="{{.PlotURL}}" alt="feature attributions">{{end}}
        {{if .ChartURL}}<p><a href="{{.ChartURL}}" target="_blank">Interactive attribution chart</a></p>{{end}}
        {{else}}
        <div class="result">Predicted class: {{.Summary}}</div>
        {{end}}
    </div>
    {{end}}
</div>

<script>
    (function() {
        const form = document.getElementById('risk-form');
        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        let ws;

        function connect() {
            ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                form.querySelectorAll('.error').forEach(function(el) { el.textContent = ''; });
                const fields = msg.fields || {};
                Object.keys(fields).forEach(function(name) {
                    const el = document.getElementById(name + '-error');
                    if (el) { el.textContent = fields[name]; }
                });
            };
            ws.onclose = function() { setTimeout(connect, 3000); };
        }

        function collect() {
            const raw = {};
            form.querySelectorAll('[data-kind]').forEach(function(el) {
                if (el.value === '') { return; }
                if (el.dataset.kind === 'continuous') {
                    const n = Number(el.value);
                    raw[el.name] = isNaN(n) ? el.value : n;
                } else {
                    raw[el.name] = el.value;
                }
            });
            return raw;
        }

        form.addEventListener('change', function() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(collect()));
            }
        });

        connect();
    })();
</script>
</body>
</html>
`
