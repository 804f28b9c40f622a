package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeScratchFile materializes data to a fresh uniquely-named file under
// dir with the given extension, the long-running-filesystem-write path the
// concurrency model requires happen off any suspension point shared with
// in-flight handler calls.
func writeScratchFile(dir, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("%s%s", uuid.NewString(), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file %s: %w", path, err)
	}
	return path, nil
}
