// Package mailer передаёт письма из outbox во внешнюю службу отправки.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mmeshcher/clubhub/internal/model"
)

// Channel описывает используемую часть канала AMQP.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Session - открытый канал вместе с соединением, которому он принадлежит.
// Closed получает событие при разрыве соединения. Conn и Closed могут быть nil.
type Session struct {
	Channel Channel
	Conn    io.Closer
	Closed  <-chan *amqp.Error
}

// DialFunc открывает новую сессию с брокером.
type DialFunc func() (Session, error)

// RabbitMQ публикует письма в очередь задач на отправку, которую обрабатывает почтовый воркер.
// После разрыва соединения сессия открывается заново при следующей отправке.
type RabbitMQ struct {
	mu      sync.Mutex
	dial    DialFunc
	queue   string
	session *Session
}

// NewRabbitMQ подключается к брокеру и объявляет durable-очередь для писем.
func NewRabbitMQ(url, queue string) (*RabbitMQ, error) {
	return NewRabbitMQWithDialer(Dialer(url), queue)
}

// Dialer возвращает DialFunc, открывающую соединение и канал по AMQP URL.
func Dialer(url string) DialFunc {
	return func() (Session, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return Session{}, fmt.Errorf("dial rabbitmq: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return Session{}, fmt.Errorf("open rabbitmq channel: %w", err)
		}

		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		return Session{Channel: ch, Conn: conn, Closed: closed}, nil
	}
}

// NewRabbitMQWithDialer создаёт публикатор и сразу открывает первую сессию.
func NewRabbitMQWithDialer(dial DialFunc, queue string) (*RabbitMQ, error) {
	r := &RabbitMQ{dial: dial, queue: queue}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dispatch публикует письмо как persistent-сообщение с идентификатором из outbox.
// Если канал оказался закрыт, сессия переоткрывается и публикация повторяется один раз.
func (r *RabbitMQ) Dispatch(ctx context.Context, msg model.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.connect(); err != nil {
		return err
	}

	err := r.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		r.drop()
		if err := r.connect(); err != nil {
			return err
		}
		err = r.publish(ctx, msg)
	}
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			r.drop()
		}
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil
	}
	err := r.session.Channel.Close()
	if r.session.Conn != nil {
		err = errors.Join(err, r.session.Conn.Close())
	}
	r.session = nil
	return err
}

func (r *RabbitMQ) publish(ctx context.Context, msg model.OutboxMessage) error {
	return r.session.Channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID.String(),
		Type:         msg.Topic,
		Body:         msg.Payload,
	})
}

// connect открывает сессию, если её нет или соединение уже сообщило о разрыве. Вызывается под r.mu.
func (r *RabbitMQ) connect() error {
	if r.session != nil && r.session.Closed != nil {
		select {
		case <-r.session.Closed:
			r.drop()
		default:
		}
	}
	if r.session != nil {
		return nil
	}

	s, err := r.dial()
	if err != nil {
		return err
	}

	if _, err := s.Channel.QueueDeclare(r.queue, true, false, false, false, nil); err != nil {
		_ = s.Channel.Close()
		if s.Conn != nil {
			_ = s.Conn.Close()
		}
		return fmt.Errorf("declare queue %s: %w", r.queue, err)
	}

	r.session = &s
	return nil
}

// drop освобождает текущую сессию. Вызывается под r.mu.
func (r *RabbitMQ) drop() {
	if r.session == nil {
		return
	}
	_ = r.session.Channel.Close()
	if r.session.Conn != nil {
		_ = r.session.Conn.Close()
	}
	r.session = nil
}
