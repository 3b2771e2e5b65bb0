package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	commentedSite = "#import site"
	importSite    = "import site"
	// sitePackagesEntry is written with a Windows separator; the embedded
	// interpreter only runs there.
	sitePackagesEntry = `Lib\site-packages`
)

// PatchPathConfig enables site imports in the embedded interpreter's ._pth
// file and registers Lib\site-packages. Applying it twice changes nothing.
// A missing file is not an error.
func PatchPathConfig(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("unable to read path config: %w", err)
	}

	patched := patchPathConfig(string(b))
	if patched == string(b) {
		return false, nil
	}

	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil { //nolint:gosec
		return false, fmt.Errorf("unable to write path config: %w", err)
	}
	return true, nil
}

func patchPathConfig(content string) string {
	content = strings.Replace(content, commentedSite, importSite, 1)

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == sitePackagesEntry {
			return content
		}
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + sitePackagesEntry + "\n"
}
