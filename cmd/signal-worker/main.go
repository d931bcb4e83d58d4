package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/tickrify1/tickrify.com-sub000/app"
	"github.com/tickrify1/tickrify.com-sub000/app/config"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

func main() {
	baseCtx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.QueueURL == "" {
		log.Fatal("QUEUE_URL environment variable is required")
	}
	queueURL := cfg.QueueURL

	srv, err := app.Bootstrap(baseCtx, cfg)
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}
	defer srv.Close()
	gen := srv.SignalGenerator()

	awsCfg, err := awsconfig.LoadDefaultConfig(baseCtx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	log.Printf("Signal worker started, listening on SQS queue: %s", queueURL)

	for {
		recvCtx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
		resp, err := sqsClient.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            &queueURL,
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		cancel()

		if err != nil {
			log.Printf("ReceiveMessage error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if len(resp.Messages) == 0 {
			continue
		}

		for _, m := range resp.Messages {
			if m.Body == nil {
				deleteMessage(sqsClient, queueURL, m)
				continue
			}

			var job models.SignalJob
			if err := json.Unmarshal([]byte(*m.Body), &job); err != nil || job.UserID == "" {
				log.Printf("dropping malformed signal job err=%v body=%s", err, *m.Body)
				deleteMessage(sqsClient, queueURL, m)
				continue
			}

			jobCtx, jobCancel := context.WithTimeout(baseCtx, 30*time.Second)
			sig, err := gen.Process(jobCtx, job)
			jobCancel()
			if err != nil {
				// left on the queue; SQS redelivers after the visibility timeout
				log.Printf("signal job failed user=%s analysis=%s err=%v", job.UserID, job.Analysis.ID, err)
				continue
			}
			log.Printf("signal generated user=%s signal=%s type=%s", job.UserID, sig.ID, sig.Type)
			deleteMessage(sqsClient, queueURL, m)
		}
	}
}

func deleteMessage(sqsClient *sqs.Client, queueURL string, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := sqsClient.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      &queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Printf("failed to delete SQS message: %v", err)
	}
}
