package provision

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

//go:embed tts_server.py.tmpl
var serverScriptSource string

var serverScriptTemplate = template.Must(template.New("tts_server.py").Parse(serverScriptSource))

// ServerScript renders the helper control script for port.
func ServerScript(port int) ([]byte, error) {
	var buf bytes.Buffer
	err := serverScriptTemplate.Execute(&buf, struct {
		Port       int
		ServerName string
	}{port, protocol.ServerName})
	if err != nil {
		return nil, fmt.Errorf("unable to render server script: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteServerScript renders the control script for port into path.
func WriteServerScript(path string, port int) error {
	b, err := ServerScript(port)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write server script: %w", err)
	}
	return nil
}
