package pipeline

import (
	"math"
	"strings"
	"time"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// ClassifyError maps a stage failure to the matching *_ERROR status by
// keyword matching against the error text. Keyword sets are checked CMS,
// then ROS, then WMS; anything unmatched defaults to FAILED.
func ClassifyError(stage Stage, err error) domain.Status {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "soap", "cms"):
		return domain.StatusCMSError
	case containsAny(msg, "ros", "optimize", "route"):
		return domain.StatusROSError
	case containsAny(msg, "wms", "socket", "tcp"):
		return domain.StatusWMSError
	default:
		return domain.StatusFailed
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NextRetryExpiration computes the per-message retry delay for attempt
// nextRetry (1-indexed): min(maxTTL, baseTTL * 2^(nextRetry-1)).
func NextRetryExpiration(nextRetry int, baseTTL, maxTTL time.Duration) time.Duration {
	if nextRetry < 1 {
		nextRetry = 1
	}
	scaled := float64(baseTTL) * math.Pow(2, float64(nextRetry-1))
	if scaled > float64(maxTTL) {
		return maxTTL
	}
	return time.Duration(scaled)
}

// StageOrder is the fixed CMS -> ROS -> WMS call sequence.
var StageOrder = []Stage{StageCMS, StageROS, StageWMS}

// CallingStatus and OKStatus map a stage to its *_CALLING / *_OK statuses.
func CallingStatus(s Stage) domain.Status {
	switch s {
	case StageCMS:
		return domain.StatusCMSCalling
	case StageROS:
		return domain.StatusROSCalling
	case StageWMS:
		return domain.StatusWMSCalling
	}
	return domain.StatusProcessing
}

func OKStatus(s Stage) domain.Status {
	switch s {
	case StageCMS:
		return domain.StatusCMSOK
	case StageROS:
		return domain.StatusROSOK
	case StageWMS:
		return domain.StatusWMSOK
	}
	return domain.StatusProcessing
}
