package service

import (
	"context"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskStreamToStorage    TaskType = "stream_to_storage"
	TaskTranscode          TaskType = "transcode"
	TaskRetranscode        TaskType = "retranscode"
	TaskUploadExternalHost TaskType = "upload_external_host"
	TaskRemoveExternalHost TaskType = "remove_external_host"
	TaskSyncCaptions       TaskType = "sync_captions"
	TaskPublishCourseware  TaskType = "publish_courseware"
	TaskPublishBatch       TaskType = "publish_courseware_batch"
	TaskNotify             TaskType = "notify"
	TaskDeleteObject       TaskType = "delete_object"
)

// Task is the durable unit of work carried on the queue.
type Task struct {
	Type       TaskType    `json:"type"`
	VideoKey   uuid.UUID   `json:"video_key,omitempty"`
	VideoKeys  []uuid.UUID `json:"video_keys,omitempty"`
	FileID     int64       `json:"file_id,omitempty"`
	SourceURL  string      `json:"source_url,omitempty"`
	ExternalID string      `json:"external_id,omitempty"`
	Bucket     string      `json:"bucket,omitempty"`
	ObjectKey  string      `json:"object_key,omitempty"`
	Status     string      `json:"status,omitempty"`
}

type TaskQueue interface {
	Enqueue(ctx context.Context, tasks ...Task) error
}
