package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleTopics(t *testing.T) {
	assert.Equal(t, "ucp.checkout.created", TopicCheckoutCreated)
	assert.Equal(t, "ucp.checkout.completed", TopicCheckoutCompleted)
}
