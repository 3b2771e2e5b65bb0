package helper

import "os"

// InstallState is a snapshot of which parts of the helper environment exist
// on disk. It is computed on demand and never cached.
type InstallState struct {
	PythonInstalled    bool   `json:"pythonInstalled"`
	BridgeInstalled    bool   `json:"pywin32Installed"`
	ServerScriptExists bool   `json:"serverScriptExists"`
	DataPath           string `json:"dataPath"`
}

// Ready reports whether every marker is present.
func (s InstallState) Ready() bool {
	return s.PythonInstalled && s.BridgeInstalled && s.ServerScriptExists
}

type stateView struct {
	InstallState
	Ready bool `json:"ready"`
}

// View returns the state together with its derived ready flag, for JSON output.
func (s InstallState) View() any {
	return stateView{InstallState: s, Ready: s.Ready()}
}

// Marker describes one piece of the installation for reports.
type Marker struct {
	Name         string
	Path         string
	Present      bool
	Instructions string
}

// CheckSetupStatus inspects the layout with plain stat calls.
func CheckSetupStatus(l Layout) InstallState {
	python := exists(l.PythonExe())
	return InstallState{
		PythonInstalled: python,
		// The bridge is only usable through the interpreter that owns it.
		BridgeInstalled:    python && exists(l.BridgePath()),
		ServerScriptExists: exists(l.ServerScriptPath()),
		DataPath:           l.DataDir,
	}
}

// Markers lists every marker of s for a report.
func Markers(l Layout, s InstallState) []Marker {
	return []Marker{
		{
			Name:         "python",
			Path:         l.PythonExe(),
			Present:      s.PythonInstalled,
			Instructions: "run `vcnarrator setup` to download the embedded interpreter",
		},
		{
			Name:         "pywin32",
			Path:         l.BridgePath(),
			Present:      s.BridgeInstalled,
			Instructions: "run `vcnarrator setup` to install the speech bridge",
		},
		{
			Name:         "server script",
			Path:         l.ServerScriptPath(),
			Present:      s.ServerScriptExists,
			Instructions: "run `vcnarrator setup` to write the control script",
		},
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
