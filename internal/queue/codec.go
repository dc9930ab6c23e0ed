package queue

import (
	"fmt"
	"time"

	"github.com/desertthunder/bidshelf/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publishing wraps job in a persistent JSON message whose MessageId is the task id.
func Publishing(job models.Job) (amqp.Publishing, error) {
	if err := job.Validate(); err != nil {
		return amqp.Publishing{}, err
	}
	body, err := job.Encode()
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentType,
		MessageId:    job.TaskID,
		Type:         string(job.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

// DecodeDelivery parses a delivered message back into a job.
func DecodeDelivery(d amqp.Delivery) (models.Job, error) {
	if d.ContentType != "" && d.ContentType != contentType {
		return models.Job{}, fmt.Errorf("unexpected content type %q", d.ContentType)
	}
	job, err := models.DecodeJob(d.Body)
	if err != nil {
		return models.Job{}, err
	}
	if job.TaskID == "" {
		return models.Job{}, fmt.Errorf("job has no task id")
	}
	return job, nil
}
