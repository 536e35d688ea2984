package executor

import (
	"strings"

	"bindkit/internal/interp"
	"bindkit/internal/script"
)

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// buildPythonArgv appends --name value pairs in declaration order, skipping
// empty values. Boolean flags are passed bare so argparse store_true actions
// work.
func buildPythonArgv(python string, info *script.Info, args map[string]string) []string {
	argv := []string{python, info.FilePath}
	for _, spec := range info.Arguments {
		value, ok := args[spec.Name]
		if !ok || value == "" {
			continue
		}
		if spec.Type == script.TypeBool {
			if isTruthy(value) {
				argv = append(argv, "--"+spec.Name)
			}
			continue
		}
		argv = append(argv, "--"+spec.Name, value)
	}
	return argv
}

// buildPowerShellArgv uses -File with -Name Value pairs.
func buildPowerShellArgv(interpreter string, info *script.Info, args map[string]string) []string {
	argv := []string{interpreter, "-ExecutionPolicy", "Bypass", "-File", info.FilePath}
	for _, spec := range info.Arguments {
		value, ok := args[spec.Name]
		if !ok || value == "" {
			continue
		}
		argv = append(argv, "-"+spec.Name, value)
	}
	return argv
}

// buildBatchArgv passes values positionally in declaration order.
func buildBatchArgv(cmdPath string, info *script.Info, args map[string]string) []string {
	argv := []string{cmdPath, "/c", info.FilePath}
	for _, spec := range info.Arguments {
		if value, ok := args[spec.Name]; ok && value != "" {
			argv = append(argv, value)
		}
	}
	return argv
}

// buildShellArgv routes through WSL when the resolved interpreter is a
// wsl:<distro> pseudo-path, translating the script path to its /mnt mount.
// Single-letter names become -x options; longer names append positionally.
func buildShellArgv(bash string, info *script.Info, args map[string]string) []string {
	var argv []string
	if interp.IsWSL(bash) {
		argv = []string{"wsl"}
		if distro := interp.WSLDistro(bash); distro != "" {
			argv = append(argv, "-d", distro)
		}
		argv = append(argv, "--exec", "bash", interp.ToWSLPath(info.FilePath))
	} else {
		argv = []string{bash, info.FilePath}
	}

	for _, spec := range info.Arguments {
		value, ok := args[spec.Name]
		if !ok || value == "" {
			continue
		}
		if len(spec.Name) == 1 {
			if spec.Type == script.TypeBool {
				if isTruthy(value) {
					argv = append(argv, "-"+spec.Name)
				}
				continue
			}
			argv = append(argv, "-"+spec.Name, value)
			continue
		}
		argv = append(argv, value)
	}
	return argv
}

// moduleArgv builds the simulated argv for the in-process module strategy.
func moduleArgv(info *script.Info, args map[string]string) []string {
	argv := []string{info.FilePath}
	for _, spec := range info.Arguments {
		value, ok := args[spec.Name]
		if !ok || value == "" {
			continue
		}
		if spec.Type == script.TypeBool {
			if isTruthy(value) {
				argv = append(argv, "--"+spec.Name)
			}
			continue
		}
		argv = append(argv, "--"+spec.Name, value)
	}
	return argv
}
