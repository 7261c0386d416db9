package sim

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// Per-run lifecycle logs are noise in table tests.
	// DEBUG_TESTS=1 go test ./sim/... -v shows the [tick] event log.
	if os.Getenv("DEBUG_TESTS") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}
