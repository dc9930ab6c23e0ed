package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	amqp "github.com/rabbitmq/amqp091-go"
)

type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { a.nacks++; return nil }

type stubExecutor struct {
	jobs []models.Job
	err  error
}

func (s *stubExecutor) Execute(_ context.Context, job models.Job) error {
	s.jobs = append(s.jobs, job)
	return s.err
}

func unpackJob() models.Job {
	return models.Job{TaskID: "t-1", Kind: models.JobUnpackArchive, Archive: "/up/ds.zip", Destination: "/data/x"}
}

func TestPublishing(t *testing.T) {
	job := unpackJob()

	msg, err := Publishing(job)
	if err != nil {
		t.Fatalf("Publishing failed: %v", err)
	}

	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("expected persistent delivery, got %d", msg.DeliveryMode)
	}
	if msg.MessageId != "t-1" || msg.Type != string(models.JobUnpackArchive) {
		t.Errorf("unexpected headers id=%q type=%q", msg.MessageId, msg.Type)
	}

	got, err := DecodeDelivery(amqp.Delivery{ContentType: msg.ContentType, Body: msg.Body})
	if err != nil {
		t.Fatalf("DecodeDelivery failed: %v", err)
	}
	if got != job {
		t.Errorf("expected %+v, got %+v", job, got)
	}

	if _, err := Publishing(models.Job{Kind: "bogus", Destination: "/x"}); err == nil {
		t.Error("expected invalid job to be refused")
	}
}

func TestDecodeDelivery(t *testing.T) {
	tests := []struct {
		name string
		d    amqp.Delivery
	}{
		{"not json", amqp.Delivery{Body: []byte("nope")}},
		{"wrong content type", amqp.Delivery{ContentType: "text/plain", Body: []byte(`{}`)}},
		{"unknown kind", amqp.Delivery{Body: []byte(`{"task_id":"t","kind":"x","destination":"/d"}`)}},
		{"missing task id", amqp.Delivery{Body: []byte(`{"kind":"copy_folder","source":"/s","destination":"/d"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDelivery(tt.d); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConsumerHandle(t *testing.T) {
	ctx := context.Background()
	msg, err := Publishing(unpackJob())
	if err != nil {
		t.Fatalf("Publishing failed: %v", err)
	}

	t.Run("executed job is acked", func(t *testing.T) {
		ack := &ackRecorder{}
		exec := &stubExecutor{}
		c := &Consumer{exec: exec, logger: shared.NewLogger(nil)}

		c.handle(ctx, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, ContentType: msg.ContentType, Body: msg.Body})

		if ack.acks != 1 || ack.nacks != 0 {
			t.Errorf("expected one ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
		}
		if len(exec.jobs) != 1 || exec.jobs[0].TaskID != "t-1" {
			t.Errorf("unexpected executed jobs %+v", exec.jobs)
		}
	})

	t.Run("undecodable message is dropped", func(t *testing.T) {
		ack := &ackRecorder{}
		exec := &stubExecutor{}
		c := &Consumer{exec: exec, logger: shared.NewLogger(nil)}

		c.handle(ctx, amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("garbage")})

		if ack.nacks != 1 || ack.requeue {
			t.Errorf("expected nack without requeue, got nacks=%d requeue=%v", ack.nacks, ack.requeue)
		}
		if len(exec.jobs) != 0 {
			t.Error("executor should not run")
		}
	})

	t.Run("store failure is requeued once", func(t *testing.T) {
		exec := &stubExecutor{err: errors.New("database locked")}
		c := &Consumer{exec: exec, logger: shared.NewLogger(nil)}

		first := &ackRecorder{}
		c.handle(ctx, amqp.Delivery{Acknowledger: first, DeliveryTag: 3, Body: msg.Body})
		if first.nacks != 1 || !first.requeue {
			t.Errorf("expected requeue on first delivery, got nacks=%d requeue=%v", first.nacks, first.requeue)
		}

		again := &ackRecorder{}
		c.handle(ctx, amqp.Delivery{Acknowledger: again, DeliveryTag: 4, Body: msg.Body, Redelivered: true})
		if again.nacks != 1 || again.requeue {
			t.Errorf("expected redelivered message to be dropped, got nacks=%d requeue=%v", again.nacks, again.requeue)
		}
	})
}
