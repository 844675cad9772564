// Package worker runs long Docker operations through the asynq task
// queue so API requests can return immediately with a task ID.
package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names. The queue routes by these strings.
const (
	TypeComposeUp   = "compose:up"
	TypeComposeDown = "compose:down"
	TypeImagePull   = "image:pull"
)

// ComposePayload identifies a compose project on a fleet host.
type ComposePayload struct {
	Host          string `json:"host"`
	ProjectDir    string `json:"project_dir"`
	RemoveVolumes bool   `json:"remove_volumes,omitempty"`
}

// ImagePullPayload identifies an image to pull on a fleet host.
type ImagePullPayload struct {
	Host  string `json:"host"`
	Image string `json:"image"`
}

// NewComposeUpTask builds a compose:up task.
func NewComposeUpTask(host, projectDir string) (*asynq.Task, error) {
	payload, err := json.Marshal(ComposePayload{Host: host, ProjectDir: projectDir})
	if err != nil {
		return nil, fmt.Errorf("worker: marshal compose:up payload: %w", err)
	}
	return asynq.NewTask(TypeComposeUp, payload), nil
}

// NewComposeDownTask builds a compose:down task.
func NewComposeDownTask(host, projectDir string, removeVolumes bool) (*asynq.Task, error) {
	payload, err := json.Marshal(ComposePayload{Host: host, ProjectDir: projectDir, RemoveVolumes: removeVolumes})
	if err != nil {
		return nil, fmt.Errorf("worker: marshal compose:down payload: %w", err)
	}
	return asynq.NewTask(TypeComposeDown, payload), nil
}

// NewImagePullTask builds an image:pull task.
func NewImagePullTask(host, image string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImagePullPayload{Host: host, Image: image})
	if err != nil {
		return nil, fmt.Errorf("worker: marshal image:pull payload: %w", err)
	}
	return asynq.NewTask(TypeImagePull, payload), nil
}
