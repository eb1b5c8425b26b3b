package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type staticReporter bool

func (r staticReporter) Connected() bool { return bool(r) }

func TestBrokerChecker(t *testing.T) {
	t.Run("healthy when connected", func(t *testing.T) {
		checker := NewBrokerChecker("rabbitmq", staticReporter(true))

		result := checker.Check()
		assert.Equal(t, "rabbitmq", result.Name)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.Empty(t, result.Message)
		assert.WithinDuration(t, time.Now().UTC(), result.Timestamp, time.Second)
	})

	t.Run("unhealthy when the broker was unreachable", func(t *testing.T) {
		checker := NewBrokerChecker("rabbitmq", staticReporter(false))

		result := checker.Check()
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.NotEmpty(t, result.Message)
	})
}
