package imxutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.viam.com/rdk/logging"
)

// KernelDriverName is the platform-driver name the kernel's own PWM
// driver registers under.
const KernelDriverName = "imx27-pwm"

// KernelModuleName is the loadable module behind that driver.
const KernelModuleName = "pwm_imx27"

// BlacklistPath is where a modprobe blacklist entry for the kernel driver
// is written.
const BlacklistPath = "/etc/modprobe.d/viam-imx-pwm.conf"

// KernelDriverBound reports whether the kernel's PWM driver currently
// owns the peripheral at the given physical base address. Both drivers
// writing the same registers corrupts the output, so a bound kernel
// driver disqualifies the channel.
func KernelDriverBound(base uint64) bool {
	// Bound devices appear as <address>.pwm symlinks under the driver.
	pattern := filepath.Join("/sys/bus/platform/drivers", KernelDriverName, fmt.Sprintf("%x.*", base))
	matches, err := filepath.Glob(pattern)
	return err == nil && len(matches) > 0
}

// UpdateModuleBlacklist atomically adds or removes a modprobe blacklist
// entry for the kernel PWM module. It preserves file permissions and
// leaves commented lines intact; a missing file is created on add.
// Returns whether the file changed; a reboot (or modprobe -r) is still
// needed for the change to take effect.
func UpdateModuleBlacklist(filePath, moduleName string, blacklist bool, logger logging.Logger) (bool, error) {
	filePath = filepath.Clean(filePath)
	entry := "blacklist " + moduleName

	mode := os.FileMode(0o644)
	var lines []string
	content, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if info, statErr := os.Stat(filePath); statErr == nil {
			mode = info.Mode()
		}
		lines = strings.Split(string(content), "\n")
	case os.IsNotExist(err):
		if !blacklist {
			return false, nil
		}
	default:
		return false, fmt.Errorf("failed to read blacklist file %s: %w", filePath, err)
	}

	entryFound := false
	configChanged := false
	filtered := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			filtered = append(filtered, line)
			continue
		}
		if trimmed == entry {
			if !blacklist {
				configChanged = true
				continue
			}
			entryFound = true
		}
		filtered = append(filtered, line)
	}

	if blacklist && !entryFound {
		filtered = append(filtered, entry)
		configChanged = true
	}

	if !configChanged {
		return false, nil
	}

	newContent := strings.Join(filtered, "\n")
	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, []byte(newContent), mode); err != nil {
		return false, fmt.Errorf("failed to write temp blacklist file %s: %w", tempFile, err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		_ = os.Remove(tempFile)
		return false, fmt.Errorf("failed to replace blacklist file %s: %w", filePath, err)
	}

	action := "Added"
	if !blacklist {
		action = "Removed"
	}
	logger.Infof("%s blacklist entry for %s in %s", action, moduleName, filePath)
	return true, nil
}
