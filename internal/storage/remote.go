package storage

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/danielmtz/newslearn/internal/logger"
)

const (
	copyTimeout  = 5 * time.Minute
	usageTimeout = time.Minute
)

// RemoteSync mirrors artifacts to an rclone remote. Every call is best
// effort: errors are logged and swallowed, local state is never affected.
type RemoteSync struct {
	remote string
	log    *logger.Logger
}

func NewRemoteSync(remote string, log *logger.Logger) *RemoteSync {
	return &RemoteSync{remote: remote, log: log}
}

// Copy uploads a file to the remote, returning the remote path on success.
func (r *RemoteSync) Copy(filePath string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rclone", "copy", filePath, r.remote)
	if out, err := cmd.CombinedOutput(); err != nil {
		r.log.Error("Remote sync failed", "file", filepath.Base(filePath),
			"error", err, "output", string(out))
		return "", false
	}

	remotePath := r.remote + "/" + filepath.Base(filePath)
	r.log.Info("Synced to remote", "path", remotePath)
	return remotePath, true
}

// Usage asks rclone for the remote's total size in bytes.
func (r *RemoteSync) Usage() (int64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rclone", "size", r.remote, "--json")
	out, err := cmd.Output()
	if err != nil {
		r.log.Error("Failed to get remote usage", "error", err)
		return 0, false
	}

	var size struct {
		Bytes int64 `json:"bytes"`
	}
	if err := json.Unmarshal(out, &size); err != nil {
		r.log.Error("Failed to parse rclone size output", "error", err)
		return 0, false
	}
	return size.Bytes, true
}
