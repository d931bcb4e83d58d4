package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange events are forwarded to. Routing keys are "tickrify.<kind>".
const Exchange = "tickrify.events"

const (
	forwardQueue   = 256
	publishTimeout = 5 * time.Second
)

// AMQPForwarder republishes bus events on a RabbitMQ topic exchange and feeds
// events published by other processes back into a local bus.
type AMQPForwarder struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	consumer *amqp091.Channel
	exchange string

	// origin tags events this process publishes so their echo is ignored.
	origin string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPForwarder dials amqpURL and declares the exchange.
func NewAMQPForwarder(amqpURL string) (*AMQPForwarder, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = channel.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPForwarder{conn: conn, channel: channel, exchange: Exchange, origin: uuid.NewString()}, nil
}

// Attach forwards every locally published bus event until cancel is called.
// Publishing happens off the publisher's goroutine.
func (f *AMQPForwarder) Attach(bus *Bus) (cancel func()) {
	return bus.SubscribeAsync(func(ctx context.Context, e Event) {
		if err := f.Forward(ctx, e); err != nil {
			log.Printf("amqp forward failed kind=%s user=%s err=%v", e.Kind, e.UserID, err)
		}
	}, forwardQueue, publishTimeout)
}

// Forward publishes e with routing key tickrify.<kind>. Events received from
// another process are not sent back out.
func (f *AMQPForwarder) Forward(ctx context.Context, e Event) error {
	if e.Origin != "" && e.Origin != f.origin {
		return nil
	}
	e.Origin = f.origin
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel.PublishWithContext(ctx,
		f.exchange,         // exchange
		RoutingKey(e.Kind), // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID,
			Timestamp:    e.At,
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		})
}

// Consume binds a private queue to the routing keys of kinds and publishes
// every event another process sends on bus.
func (f *AMQPForwarder) Consume(bus Publisher, kinds ...Kind) error {
	ch, err := f.conn.Channel()
	if err != nil {
		return err
	}
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return err
	}
	for _, k := range kinds {
		if err := ch.QueueBind(q.Name, RoutingKey(k), f.exchange, false, nil); err != nil {
			ch.Close()
			return err
		}
	}
	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return err
	}

	f.mu.Lock()
	f.consumer = ch
	f.mu.Unlock()

	go func() {
		for d := range deliveries {
			f.receive(bus, d.Body)
		}
	}()
	return nil
}

// receive decodes one delivery and republishes it locally unless it is our own echo.
func (f *AMQPForwarder) receive(bus Publisher, body []byte) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		log.Printf("amqp dropping malformed event err=%v", err)
		return
	}
	if e.Origin == f.origin || e.Kind == "" {
		return
	}
	bus.Publish(context.Background(), e)
}

func RoutingKey(k Kind) string {
	return "tickrify." + string(k)
}

// Close gracefully closes the channel and connection.
func (f *AMQPForwarder) Close() {
	if f.consumer != nil {
		f.consumer.Close()
	}
	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
