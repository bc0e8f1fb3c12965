package rabbitmq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/constant"
	"lecture-avatar/entities"
)

func TestEventForCompletedJob(t *testing.T) {
	job := &entities.Job{
		ID:      "text_7",
		Kind:    constant.TaskKindText,
		Status:  constant.TaskStatusCompleted,
		Message: "Video generation completed",
		Result: &entities.JobResult{
			VideoPath:   "outputs/text_7/avatar_video.mp4",
			ArtifactURL: "jobs/text_7/avatar_video.mp4",
		},
	}

	event := eventFor(job)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "text_7", event.JobID)
	assert.Equal(t, "text", event.Kind)
	assert.Equal(t, "completed", event.Status)
	assert.Equal(t, "Video generation completed", event.Message)
	assert.Equal(t, "outputs/text_7/avatar_video.mp4", event.VideoPath)
	assert.Equal(t, "jobs/text_7/avatar_video.mp4", event.ArtifactURL)
}

func TestEventForFailedJobOmitsResultFields(t *testing.T) {
	job := &entities.Job{
		ID:      "audio_3",
		Kind:    constant.TaskKindAudio,
		Status:  constant.TaskStatusFailed,
		Message: "Generation failed",
	}

	body, err := json.Marshal(eventFor(job))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "audio_3", wire["jobId"])
	assert.Equal(t, "failed", wire["status"])
	assert.NotContains(t, wire, "videoPath")
	assert.NotContains(t, wire, "artifactUrl")
}

func TestRoutingKeyFollowsStatus(t *testing.T) {
	assert.Equal(t, "avatar.job.completed", routingKeyFor(constant.TaskStatusCompleted))
	assert.Equal(t, "avatar.job.failed", routingKeyFor(constant.TaskStatusFailed))
}
