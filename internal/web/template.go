package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gate-controller/internal/logic"
	"github.com/sweeney/gate-controller/internal/status"
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
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05.00Z")
	},
	"seconds": func(d time.Duration) string {
		return fmt.Sprintf("%.2fs", d.Seconds())
	},
	"contact": func(is bool) string {
		if is {
			return "high"
		}
		return "low"
	},
	"dirClass": func(d logic.Direction) string {
		if d == logic.DirUnknown {
			return "unknown"
		}
		return "known"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Gate Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.known { font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Gate Controller ({{.Config.DeviceID}})</h1>

<h2>Gate</h2>
<table>
<tr><th>Moving</th><td id="moving" class="{{if .Gate.Moving}}on{{else}}off{{end}}">{{if .Gate.Moving}}yes{{else}}no{{end}}</td></tr>
<tr><th>Since</th><td>{{stamp .Gate.Since}}</td></tr>
<tr><th>Direction</th><td id="dir" class="{{dirClass .Gate.Direction}}">{{.Gate.Direction}}</td></tr>
<tr><th>STOP hold</th><td class="{{if .Gate.Control.StopHold}}on{{else}}off{{end}}">{{if .Gate.Control.StopHold}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Updates</th><td>{{.Updates}}</td></tr>
</table>

<h2>SCA</h2>
<table>
<tr><th>Contact</th><td id="sca">{{contact .Gate.Contact.Is}}</td></tr>
<tr><th>Since</th><td>{{stamp .Gate.Contact.Since}}</td></tr>
<tr><th>Previous</th><td>{{contact .Gate.Contact.Was}} for {{seconds .Gate.Contact.Lasted}}</td></tr>
</table>
{{if ge .Config.PinButton 0}}
<h2>Button</h2>
<table>
<tr><th>Presses</th><td id="btn">{{.Buttons}}</td></tr>
</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample period</th><td>{{.Config.SamplePeriodMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Pins</th><td>SCA {{.Config.PinSCA}}, STOP {{.Config.PinStop}}, PP {{.Config.PinPP}}{{if ge .Config.PinButton 0}}, button {{.Config.PinButton}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/gate.json">Gate</a></p>
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
	indexTmpl.Execute(w, data)
}
