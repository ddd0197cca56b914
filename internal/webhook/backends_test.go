package webhook

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisDedupeKeyNamespacing(t *testing.T) {
	s := &RedisDedupeStore{prefix: "custos:webhook"}
	assert.Equal(t, "custos:webhook:evt-1", s.key("evt-1"))
}

func TestNewAMQPQueueInvalidURI(t *testing.T) {
	_, err := NewAMQPQueue("not-a-uri", "", slog.Default())
	assert.Error(t, err)
}
