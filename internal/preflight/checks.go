package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"mergedesk/internal/remote"
)

const backendTimeout = 5 * time.Second

// CheckBackend verifies the duplicate service answers and accepts the token.
func CheckBackend(ctx context.Context, backend remote.Listings) Result {
	const name = "Duplicate backend"

	checkCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	summary, err := backend.GetSummary(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeBackendError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Reachable (%d duplicate sets)", summary.TotalSets)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeBackendError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (backend unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (backend unreachable)"
	}
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		switch remoteErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "auth failed (check backend.token)"
		case 0:
		default:
			return fmt.Sprintf("health check failed (%d): %s", remoteErr.StatusCode, remote.Message(err))
		}
	}
	return remote.Message(err)
}
