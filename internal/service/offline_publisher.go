package service

import (
    "context"
    "encoding/json"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iplance/iplance-core/internal/queue"
)

// OfflinePublisher publishes offline message events to RabbitMQ.  Errors are
// logged and returned so callers can ignore them without interrupting the
// chat flow.
type OfflinePublisher struct {
    url   string
    queue string
}

func NewOfflinePublisher(url, queueName string) *OfflinePublisher {
    return &OfflinePublisher{url: url, queue: queueName}
}

// NotifyOffline publishes ev to the offline queue.  The queue is declared
// durable and messages are marked persistent.
func (p *OfflinePublisher) NotifyOffline(ctx context.Context, ev queue.OfflineMessageEvent) error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Warnf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warnf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        p.queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        log.Warnf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
        log.Warnf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}
