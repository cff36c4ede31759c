package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one notification request: a derived event kind on a tap.
type Job struct {
	TapID int64
	Kind  model.EventKind
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			log.Printf("Notification worker %d processing %s for tap %d", id, job.Kind, job.TapID)
			wp.sendNotificationsForTap(ctx, job)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a notification job. Implements event.Notifier.
func (wp *WorkerPool) Dispatch(tapID int64, kind model.EventKind) {
	wp.jobs <- Job{TapID: tapID, Kind: kind}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForTap fetches subscriptions and sends notifications for
// a given tap.
func (wp *WorkerPool) sendNotificationsForTap(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_tap_mapping stm ON stm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("stm.tap_id = ?", job.TapID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for tap %d: %v", job.TapID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for tap %d", len(subscriptions), job.TapID)

	var t model.Tap
	tapLabel := fmt.Sprintf("tap %d", job.TapID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&t, job.TapID).Error; err != nil {
		log.Printf("Error fetching tap %d: %v", job.TapID, err)
	} else if t.Name != "" {
		tapLabel = t.Name
	}

	var message string
	switch job.Kind {
	case model.EventKegVolumeLow:
		message = fmt.Sprintf("The keg on %s is running low!", tapLabel)
	case model.EventKegEnded:
		message = fmt.Sprintf("The keg on %s has been kicked.", tapLabel)
	default:
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
