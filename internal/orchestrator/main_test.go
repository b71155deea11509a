package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// genai pulls in opencensus, whose stats worker starts at package init.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}
