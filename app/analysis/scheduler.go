package analysis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// SignalScheduler arranges for a job to be processed after the signal delay.
type SignalScheduler interface {
	Schedule(ctx context.Context, job models.SignalJob) error
}

// TimerScheduler runs jobs in-process with time.AfterFunc.
type TimerScheduler struct {
	gen   *SignalGenerator
	delay time.Duration

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

func NewTimerScheduler(gen *SignalGenerator, delay time.Duration) *TimerScheduler {
	return &TimerScheduler{gen: gen, delay: delay, pending: map[*time.Timer]struct{}{}}
}

func (s *TimerScheduler) Schedule(_ context.Context, job models.SignalJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.pending, t)
		s.mu.Unlock()
		// The request context is gone by now.
		if _, err := s.gen.Process(context.Background(), job); err != nil {
			log.Printf("signal job failed user=%s err=%v", job.UserID, err)
		}
	})
	s.pending[t] = struct{}{}
	return nil
}

// Stop cancels timers that have not fired and waits for running jobs.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	for t := range s.pending {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.pending, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SQSSender is the part of the SQS client the scheduler needs.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS caps DelaySeconds at 15 minutes.
const maxSQSDelay = 900

// SQSScheduler enqueues jobs with DelaySeconds for cmd/signal-worker.
type SQSScheduler struct {
	client   SQSSender
	queueURL string
	delay    time.Duration
}

func NewSQSScheduler(client SQSSender, queueURL string, delay time.Duration) *SQSScheduler {
	return &SQSScheduler{client: client, queueURL: queueURL, delay: delay}
}

func (s *SQSScheduler) Schedule(ctx context.Context, job models.SignalJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	delay := int32(s.delay / time.Second)
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delay,
	})
	return err
}
