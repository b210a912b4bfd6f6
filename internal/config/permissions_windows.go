//go:build windows

package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ACL principals that mean the file is readable by more than its owner.
var broadPrincipals = []string{
	"everyone",
	"authenticated users",
	"builtin\\users",
	"users",
}

// checkFilePermissions warns when the config file's ACL grants access to
// broad groups. The YAML carries the PostgreSQL password and, when
// notifications are enabled, the Slack webhook URL.
func checkFilePermissions(path string) string {
	if _, err := os.Stat(path); err != nil {
		// Load will surface the real read error
		return ""
	}

	output, err := exec.Command("icacls", path).Output()
	if err != nil {
		// icacls unavailable, nothing to check against
		return ""
	}

	acl := strings.ToLower(string(output))
	for _, principal := range broadPrincipals {
		if !strings.Contains(acl, principal) {
			continue
		}
		return fmt.Sprintf(
			"WARNING: Config file '%s' is accessible to '%s'\n"+
				"         Other users may be able to read the database password or Slack webhook.\n"+
				"         Run in PowerShell to secure:\n"+
				"         icacls \"%s\" /inheritance:r /grant:r \"%%USERNAME%%:F\"\n\n",
			path, principal, path,
		)
	}
	return ""
}
