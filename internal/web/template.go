package web

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/capsense/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s fmt.Stringer) string {
		return strings.ToLower(s.String())
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Capsense</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.touch { color: green; font-weight: bold; }
.prox { color: #2a7ab0; }
.idle, .baseline_changed, .rising, .falling { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Capsense<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Sensors</h2>
<table>
<tr><th>Name</th><th>Kind</th><th>State</th><th>Delta</th><th>Baseline</th><th>Prox</th><th>Position</th></tr>
<tbody id="sensors">
{{range .Sensors}}<tr><td>{{.Name}}</td><td>{{.Kind}}</td><td class="{{stateClass .State}}">{{.State}}</td><td>{{.Delta}}</td><td>{{.Baseline}}</td><td>{{.ProxRatio}}</td><td>{{if .HasPosition}}{{.Position}}{{end}}</td></tr>
{{end}}</tbody>
</table>
<p>Ready: {{if .Ready}}yes{{else}}no{{end}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>TOUCH</th><td>{{.Counts.Touch}}</td></tr>
<tr><th>RELEASE</th><td>{{.Counts.Release}}</td></tr>
<tr><th>PROX</th><td>{{.Counts.Prox}}</td></tr>
<tr><th>PROX_RELEASE</th><td>{{.Counts.ProxRelease}}</td></tr>
<tr><th>MOVE</th><td>{{.Counts.Move}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Polls</th><td>{{.Polls}}</td></tr>
<tr><th>Read errors</th><td>{{.ReadErrors}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var body = document.getElementById("sensors");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function cell(tr, text, cls) {
    var td = document.createElement("td");
    td.textContent = text;
    if (cls) td.className = cls;
    tr.appendChild(td);
  }

  function render(sensors) {
    body.textContent = "";
    sensors.forEach(function(s) {
      var tr = document.createElement("tr");
      cell(tr, s.name);
      cell(tr, s.kind);
      cell(tr, s.state, s.state.toLowerCase());
      cell(tr, s.delta);
      cell(tr, s.baseline);
      cell(tr, s.prox_ratio);
      cell(tr, s.position === undefined ? "" : s.position);
      body.appendChild(tr);
    });
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(e) {
      try {
        var msg = JSON.parse(e.data);
        if (msg.status) render(msg.status.sensors);
      } catch (err) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		slog.Warn("render status page", "err", err)
	}
}
