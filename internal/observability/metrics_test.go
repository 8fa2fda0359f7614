package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrameSent("keepalive", 8)
	RecordFrameSent("topic", 42)
	RecordFrameReceived("system")
	RecordReconnect()
	RecordDroppedFrames(3)
	SetOutgoingDepth(0)
	RecordDispatch("topic")
	RecordCallbackPanic()
	SetPendingCalls(1)
	SetActiveGoals("client", 2)
	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
}
