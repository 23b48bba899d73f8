// Package process controls the Antigravity application lifecycle: name-based
// termination before a switch and a detached relaunch after it.
package process

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Controller is the platform abstraction the switch orchestrator drives.
// Kill is best-effort: a process that is not running is not an error.
// Relaunch's contract ends at "process start requested"; the started process
// is never waited on or supervised.
type Controller interface {
	Kill() error
	Relaunch() error
}

type antigravity struct {
	goos string
}

// NewController returns the controller for the current platform.
func NewController() Controller {
	return &antigravity{goos: runtime.GOOS}
}

// Kill terminates the Antigravity process tree by name. Kill failures are
// swallowed: the common case is simply that Antigravity isn't running.
func (a *antigravity) Kill() error {
	switch a.goos {
	case "darwin":
		run("pkill", "-9", "-i", "Antigravity")
		run("pkill", "-9", "-f", "Antigravity Helper")
	case "windows":
		run("taskkill", "/F", "/IM", "Antigravity.exe", "/T")
	default:
		run("pkill", "-9", "-f", "antigravity")
	}
	return nil
}

// Relaunch starts Antigravity detached from this process.
func (a *antigravity) Relaunch() error {
	switch a.goos {
	case "darwin":
		return spawn("open", "-a", "Antigravity")
	case "windows":
		exe, err := windowsExecutable()
		if err != nil {
			return err
		}
		return spawn(exe)
	default:
		return spawn("antigravity")
	}
}

// windowsExecutable probes the conventional install locations.
func windowsExecutable() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, "AppData", "Local", "Programs", "Antigravity", "Antigravity.exe"),
		filepath.Join("C:\\", "Program Files", "Antigravity", "Antigravity.exe"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find Antigravity.exe (looked in %v)", candidates)
}

func run(name string, args ...string) {
	if err := exec.Command(name, args...).Run(); err != nil {
		// Expected when no matching process exists; log at most.
		log.Printf("🔪 %s exited with: %v", name, err)
	}
}

// spawn starts a command fire-and-forget, releasing the process handle so no
// zombie is left behind when it exits.
func spawn(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return cmd.Process.Release()
}
