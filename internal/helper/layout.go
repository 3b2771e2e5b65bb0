// Package helper describes the on-disk layout of the speech helper
// environment and inspects how much of it is installed.
package helper

import "path/filepath"

// File and directory names inside the data directory.
const (
	PythonDir    = "python"
	ServerScript = "tts_server.py"
	ArchiveName  = "python.zip"
	GetPipName   = "get-pip.py"
	PathFile     = "python311._pth"
	BridgeModule = "win32com"
	// Interpreter is the binary name of the embedded distribution.
	Interpreter = "python.exe"
)

// Layout resolves every path of the helper environment from its data
// directory. It never touches the filesystem.
type Layout struct {
	DataDir string
}

// NewLayout returns the layout rooted at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{DataDir: filepath.Clean(dataDir)}
}

// PythonPath is the directory the embedded interpreter is extracted into.
func (l Layout) PythonPath() string {
	return filepath.Join(l.DataDir, PythonDir)
}

// PythonExe is the interpreter binary.
func (l Layout) PythonExe() string {
	return filepath.Join(l.PythonPath(), Interpreter)
}

// SitePackages is the interpreter's package directory.
func (l Layout) SitePackages() string {
	return filepath.Join(l.PythonPath(), "Lib", "site-packages")
}

// BridgePath is the marker directory of the speech bridge library.
func (l Layout) BridgePath() string {
	return filepath.Join(l.SitePackages(), BridgeModule)
}

// ServerScriptPath is the control script run by the interpreter.
func (l Layout) ServerScriptPath() string {
	return filepath.Join(l.DataDir, ServerScript)
}

// ArchivePath is where the interpreter archive is downloaded to.
func (l Layout) ArchivePath() string {
	return filepath.Join(l.DataDir, ArchiveName)
}

// GetPipPath is where the pip bootstrap script is downloaded to.
func (l Layout) GetPipPath() string {
	return filepath.Join(l.DataDir, GetPipName)
}

// PathConfig is the embedded interpreter's ._pth file.
func (l Layout) PathConfig() string {
	return filepath.Join(l.PythonPath(), PathFile)
}
