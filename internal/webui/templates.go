package webui

import (
	"fmt"
	"html/template"
)

// Templates contains all HTML templates for the web UI
var Templates = template.Must(template.New("").Funcs(template.FuncMap{
	"levelClass": func(level string) string {
		switch level {
		case "error", "fatal", "panic":
			return "log-error"
		case "warn":
			return "log-warn"
		case "debug", "trace":
			return "log-debug"
		default:
			return "log-info"
		}
	},
	"severityClass": func(severity any) string {
		return "sev-" + fmt.Sprint(severity)
	},
	"value": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(`
{{define "base"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>RiskPulse</title>
    <style>
        :root {
            --bg: #0f1419;
            --panel: #171d24;
            --border: #2a323c;
            --text: #e4e8ec;
            --muted: #8a96a3;
            --green: #3fb950;
            --red: #f85149;
            --orange: #f0883e;
            --yellow: #d29922;
            --blue: #58a6ff;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
        }
        .container { max-width: 1280px; margin: 0 auto; padding: 1.5rem; }
        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            padding-bottom: 1rem;
            margin-bottom: 1.5rem;
            border-bottom: 1px solid var(--border);
        }
        header h1 { font-size: 1.4rem; }
        header .meta { color: var(--muted); font-size: 0.85rem; }
        .state { padding: 0.2rem 0.7rem; border-radius: 999px; font-weight: 600; font-size: 0.8rem; }
        .state-running { background: rgba(63,185,80,0.15); color: var(--green); }
        .state-paused { background: rgba(210,153,34,0.15); color: var(--yellow); }
        .state-stopped { background: rgba(138,150,163,0.15); color: var(--muted); }
        .controls button {
            background: var(--panel);
            color: var(--text);
            border: 1px solid var(--border);
            border-radius: 6px;
            padding: 0.35rem 0.8rem;
            margin-left: 0.3rem;
            cursor: pointer;
        }
        .controls button:hover { border-color: var(--blue); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
        .card { background: var(--panel); border: 1px solid var(--border); border-radius: 8px; padding: 1rem; }
        .card .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.04em; }
        .card .big { font-size: 1.8rem; font-weight: 600; font-variant-numeric: tabular-nums; }
        .panels { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
        @media (max-width: 900px) { .panels { grid-template-columns: 1fr; } }
        .panel h2 { font-size: 1rem; margin-bottom: 0.75rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
        th, td { text-align: left; padding: 0.35rem 0.4rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 500; }
        .sev-critical { color: var(--red); }
        .sev-high { color: var(--orange); }
        .sev-medium { color: var(--yellow); }
        .sev-low { color: var(--blue); }
        .empty { color: var(--muted); font-style: italic; padding: 0.5rem 0; }
        .logs { font-family: ui-monospace, monospace; font-size: 0.78rem; max-height: 320px; overflow-y: auto; }
        .log-entry { display: flex; gap: 0.6rem; padding: 0.1rem 0; }
        .log-time { color: var(--muted); }
        .log-level { width: 3.5rem; text-transform: uppercase; }
        .log-error .log-level { color: var(--red); }
        .log-warn .log-level { color: var(--yellow); }
        .log-info .log-level { color: var(--blue); }
        .log-debug .log-level { color: var(--muted); }
        footer { margin-top: 1.5rem; color: var(--muted); font-size: 0.8rem; }
        footer a { color: var(--blue); }
    </style>
</head>
<body>
    <div class="container">
        {{template "content" .}}
    </div>
    <script>
        function control(action) {
            fetch('/api/monitor/' + action, {method: 'POST'})
                .then(r => r.json())
                .then(() => window.location.reload());
        }

        (function stream() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/api/stream');
            ws.onmessage = (msg) => {
                const ev = JSON.parse(msg.data);
                if (!ev.sample) return;
                for (const [name, el] of Object.entries({
                    riskScore: document.getElementById('v-riskScore'),
                    systemLoad: document.getElementById('v-systemLoad'),
                    errorRate: document.getElementById('v-errorRate'),
                })) {
                    if (el && ev.sample[name] !== undefined) el.textContent = ev.sample[name].toFixed(2);
                }
                const ts = document.getElementById('last-sample');
                if (ts) ts.textContent = new Date(ev.sample.timestamp).toLocaleTimeString();
                if (ev.alerts && ev.alerts.length) setTimeout(() => window.location.reload(), 250);
            };
            ws.onclose = () => setTimeout(stream, 3000);
        })();
    </script>
</body>
</html>
{{end}}

{{define "content"}}
        <header>
            <div>
                <h1>RiskPulse <span class="state state-{{.Status.State}}">{{.Status.State}}</span></h1>
                <div class="meta">
                    interval {{.Status.Interval}} &middot; window {{.Status.MaxDataPoints}} &middot;
                    alert log {{.Status.AlertRetention}} &middot; up {{.Uptime}}
                </div>
            </div>
            <div class="controls">
                <button onclick="control('start')">Start</button>
                <button onclick="control('pause')">Pause</button>
                <button onclick="control('resume')">Resume</button>
                <button onclick="control('stop')">Stop</button>
                <button onclick="control('reset')">Reset</button>
            </div>
        </header>

        <div class="grid">
            {{range .Latest}}
            <div class="card">
                <div class="label">{{.Name}}</div>
                <div class="big" id="v-{{.Name}}">{{value .Value}}</div>
            </div>
            {{end}}
            <div class="card">
                <div class="label">Samples / dropped</div>
                <div class="big">{{.Status.TicksSampled}} / {{.Status.TicksDropped}}</div>
            </div>
            <div class="card">
                <div class="label">Firing</div>
                <div class="big {{if .Firing}}sev-critical{{end}}">{{len .Firing}}</div>
            </div>
        </div>

        <div class="panels">
            <div class="card panel">
                <h2>Recent alerts</h2>
                {{if .Alerts}}
                <table>
                    <tr><th>Time</th><th>Metric</th><th>Value</th><th>Limit</th><th>Severity</th></tr>
                    {{range .Alerts}}
                    <tr>
                        <td>{{.Timestamp.Format "15:04:05"}}</td>
                        <td>{{.Metric}}</td>
                        <td>{{value .ObservedValue}}</td>
                        <td>{{.Comparison}} {{value .Limit}}</td>
                        <td class="{{severityClass .Severity}}">{{.Severity}}</td>
                    </tr>
                    {{end}}
                </table>
                {{else}}
                <div class="empty">No alerts raised</div>
                {{end}}
            </div>

            <div class="card panel">
                <h2>Rules</h2>
                {{if .Rules}}
                <table>
                    <tr><th>Metric</th><th>Condition</th><th>Severity</th><th>Enabled</th></tr>
                    {{range .Rules}}
                    <tr>
                        <td>{{.Metric}}</td>
                        <td>{{.Comparison}} {{value .Limit}}</td>
                        <td class="{{severityClass .Severity}}">{{.Severity}}</td>
                        <td>{{if .Enabled}}yes{{else}}no{{end}}</td>
                    </tr>
                    {{end}}
                </table>
                {{else}}
                <div class="empty">No rules configured</div>
                {{end}}
            </div>

            <div class="card panel">
                <h2>Firing conditions</h2>
                {{if .Firing}}
                <table>
                    <tr><th>Condition</th><th>Since</th><th>Seen</th><th></th></tr>
                    {{range .Firing}}
                    <tr>
                        <td class="{{severityClass .Alert.Severity}}">{{.Key}}</td>
                        <td>{{.FiredAt.Format "15:04:05"}}</td>
                        <td>{{.Occurrences}}</td>
                        <td>{{if .Flapping}}flapping{{end}}</td>
                    </tr>
                    {{end}}
                </table>
                {{else}}
                <div class="empty">Nothing firing</div>
                {{end}}
                {{with .Telemetry}}
                <h2 style="margin-top: 1rem;">Telemetry</h2>
                <table>
                    <tr><th>Target</th><td>{{.Target}}</td></tr>
                    <tr><th>Connected</th><td>{{if .Connected}}yes{{else}}no{{end}}</td></tr>
                    <tr><th>Updates</th><td>{{.UpdateCount}}</td></tr>
                    {{if .LastError}}<tr><th>Last error</th><td>{{.LastError}}</td></tr>{{end}}
                </table>
                {{end}}
            </div>

            <div class="card panel">
                <h2>Logs</h2>
                <div class="logs">
                    {{range .Logs}}
                    <div class="log-entry {{levelClass .Level}}">
                        <span class="log-time">{{.Timestamp.Format "15:04:05"}}</span>
                        <span class="log-level">{{.Level}}</span>
                        <span class="log-message">{{.Message}}</span>
                    </div>
                    {{else}}
                    <div class="empty">No log output yet</div>
                    {{end}}
                </div>
            </div>
        </div>

        <footer>
            Last sample <span id="last-sample">{{if .LastSample.IsZero}}never{{else}}{{.LastSample.Format "15:04:05"}}{{end}}</span> &middot;
            <a href="/api/export?format=json">export json</a> &middot;
            <a href="/api/export?format=yaml">export yaml</a> &middot;
            <a href="/metrics">metrics</a> &middot;
            {{.Version.Version}}{{if ne .Version.Commit "unknown"}} ({{.Version.Commit | printf "%.7s"}}){{end}}
        </footer>
{{end}}
`))
