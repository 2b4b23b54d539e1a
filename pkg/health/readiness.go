package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/eventbase/pkg/manager"
)

// ReadinessChecker reports healthy only once every base the manager has
// open has replayed its log at least once. A manager with no open bases is
// considered ready — there is nothing to catch up on yet.
type ReadinessChecker struct {
	mgr *manager.Manager
}

// NewReadinessChecker builds a ReadinessChecker over mgr.
func NewReadinessChecker(mgr *manager.Manager) *ReadinessChecker {
	return &ReadinessChecker{mgr: mgr}
}

// Check implements Checker.
func (r *ReadinessChecker) Check(ctx context.Context) Result {
	start := time.Now()
	streams := r.mgr.OpenStreams()

	var notReady []string
	for _, b := range streams {
		if !b.IsReady() {
			notReady = append(notReady, b.StreamName())
		}
	}

	if len(notReady) > 0 {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("catching up: %s", strings.Join(notReady, ", ")),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("%d stream(s) ready", len(streams)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type implements Checker.
func (r *ReadinessChecker) Type() CheckType {
	return CheckTypeReadiness
}
