package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/popcatch-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/popup-submissions", TopicResourceName("p1", " popup-submissions "))
	assert.Equal(t, "projects/other/topics/t", TopicResourceName("p1", "projects/other/topics/t"))
	assert.Empty(t, TopicResourceName("", "popup-submissions"))
	assert.Empty(t, TopicResourceName("p1", "  "))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	assert.Equal(t, []string{"subs"}, topicNames(config.PubSubConfig{SubmissionsTopic: " subs "}))
	assert.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("subs"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
