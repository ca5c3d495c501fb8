package session

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// HealthService is the gRPC health service name a daemon reports for its
// backend link.
const HealthService = "wabot.Session"

// BaseDir returns the wabot data root, $XDG_DATA_HOME/wabot.
func BaseDir() string {
	return filepath.Join(xdg.DataHome, "wabot")
}

// Dir returns the instance-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// Paths is the file layout of one instance directory.
type Paths struct {
	Dir      string
	Socket   string
	AppDB    string
	DeviceDB string
	LogDir   string
	Log      string
}

// PathsIn lays out an instance rooted at dir.
func PathsIn(dir string) Paths {
	logDir := filepath.Join(dir, "logs")
	return Paths{
		Dir:      dir,
		Socket:   filepath.Join(dir, "daemon.sock"),
		AppDB:    filepath.Join(dir, "wabot.db"),
		DeviceDB: filepath.Join(dir, "device.db"),
		LogDir:   logDir,
		Log:      filepath.Join(logDir, "wabotd.log"),
	}
}

// SocketPath returns the UDS socket path for an instance's health endpoint.
func SocketPath(name string) string {
	return PathsIn(Dir(name)).Socket
}

// WhatsmeowDBPath returns the whatsmeow device store path.
func WhatsmeowDBPath(name string) string {
	return PathsIn(Dir(name)).DeviceDB
}

// AppDBPath returns the orchestrator-owned wabot.db path.
func AppDBPath(name string) string {
	return PathsIn(Dir(name)).AppDB
}

// LogDir returns the log directory for an instance.
func LogDir(name string) string {
	return PathsIn(Dir(name)).LogDir
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return PathsIn(Dir(name)).Log
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with owner-only permissions.
func EnsureDir(name string) error {
	return PathsIn(Dir(name)).Ensure()
}

// Ensure creates the directories of p with owner-only permissions.
func (p Paths) Ensure() error {
	for _, d := range []string{p.Dir, p.LogDir} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
