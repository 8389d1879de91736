// Package supervisor writes the OS autostart unit that keeps the daemon
// running, and clears platform crash-loop state so a repaired daemon can
// start again.
package supervisor

import (
	"bytes"
	"fmt"
	"text/template"
)

// Autostart identifiers per platform.
const (
	LaunchdLabel = "com.useai.daemon"
	SystemdUnit  = "useai.service"
	StartupVBS   = "useai.vbs"
)

var launchdTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.ExecPath}}</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
	<key>ThrottleInterval</key>
	<integer>10</integer>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=useai session tracking daemon
After=default.target
StartLimitIntervalSec=60
StartLimitBurst=5

[Service]
Type=simple
ExecStart={{.ExecPath}} run
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`))

var vbsTemplate = template.Must(template.New("vbs").Parse(`Set shell = CreateObject("WScript.Shell")
shell.Run """{{.ExecPath}}"" run", 0, False
`))

type unitParams struct {
	Label    string
	ExecPath string
	LogPath  string
}

func renderLaunchdPlist(execPath, logPath string) (string, error) {
	return render(launchdTemplate, unitParams{Label: LaunchdLabel, ExecPath: execPath, LogPath: logPath})
}

func renderSystemdUnit(execPath string) (string, error) {
	return render(systemdTemplate, unitParams{ExecPath: execPath})
}

func renderStartupVBS(execPath string) (string, error) {
	return render(vbsTemplate, unitParams{ExecPath: execPath})
}

func render(t *template.Template, p unitParams) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("supervisor: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
