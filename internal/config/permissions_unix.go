//go:build unix

package config

import (
	"fmt"
	"os"
)

// checkFilePermissions warns when the config file is readable beyond its
// owner. The YAML carries the PostgreSQL password and, when notifications
// are enabled, the Slack webhook URL.
func checkFilePermissions(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		// Load will surface the real read error
		return ""
	}

	mode := info.Mode().Perm()
	if mode&0077 == 0 {
		return ""
	}

	return fmt.Sprintf(
		"WARNING: Config file '%s' has permissions %04o\n"+
			"         Other users may be able to read the database password or Slack webhook.\n"+
			"         Run: chmod 600 %s\n\n",
		path, mode, path,
	)
}
