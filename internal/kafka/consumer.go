package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"market-system/internal/config"
	"market-system/internal/logger"
	"market-system/internal/models"
	"market-system/internal/workerpool"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SyncProcessHandler обрабатывает события очереди.
// Очередь захвата купонов использует только SingleProcess.
type SyncProcessHandler interface {
	SingleProcess(ctx context.Context, msg models.SyncMessage) error
	BatchProcess(ctx context.Context, msgs []models.SyncMessage) error
}

// Submitter принимает задачу к исполнению или отбрасывает её
type Submitter interface {
	Submit(task workerpool.Task) bool
}

// Consumer читает события из Kafka и передаёт их в пул воркеров.
// Имя топика совпадает с именем очереди, по которому зарегистрирован обработчик.
type Consumer struct {
	consumer sarama.ConsumerGroup
	pool     Submitter
	log      *logger.Logger
	handlers map[string]SyncProcessHandler
	topics   []string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// NewConsumer создает consumer group для очереди захвата купонов
func NewConsumer(cfg *config.KafkaConfig, pool Submitter, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	log.WithFields(logrus.Fields{
		"brokers":  cfg.Brokers,
		"group_id": cfg.GroupID,
		"topic":    cfg.Topics.SeizeSync,
	}).Info("Kafka consumer created")

	return &Consumer{
		consumer: group,
		pool:     pool,
		log:      log,
		handlers: make(map[string]SyncProcessHandler),
		topics:   []string{cfg.Topics.SeizeSync},
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NewTestConsumer собирает Consumer поверх готовой группы
func NewTestConsumer(group sarama.ConsumerGroup, pool Submitter, log *logger.Logger, topics ...string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		consumer: group,
		pool:     pool,
		log:      log,
		handlers: make(map[string]SyncProcessHandler),
		topics:   topics,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler регистрирует обработчик очереди
func (c *Consumer) RegisterHandler(queue string, handler SyncProcessHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[queue] = handler
}

// Handler возвращает обработчик очереди
func (c *Consumer) Handler(queue string) SyncProcessHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[queue]
}

// HandlerCount возвращает число зарегистрированных обработчиков
func (c *Consumer) HandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Start запускает чтение топиков в фоне
func (c *Consumer) Start() error {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) || c.ctx.Err() != nil {
					return
				}
				c.log.WithError(err).Error("Kafka consume error")
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.consumer.Errors():
				if !ok {
					return
				}
				c.log.WithError(err).Error("Kafka consumer group error")
			case <-c.ctx.Done():
				return
			}
		}
	}()

	c.log.WithField("topics", c.topics).Info("Kafka consumer started")
	return nil
}

// Stop останавливает чтение и закрывает группу
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.log.Info("Kafka consumer stopped")
	return nil
}

// Setup вызывается при назначении партиций
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при отзыве партиций
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim передаёт сообщения партиции в пул.
// Смещение фиксируется, как только сообщение предложено пулу, даже если пул его отбросил.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.processMessage(msg); err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("Failed to dispatch message")
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) error {
	handler := c.Handler(msg.Topic)
	if handler == nil {
		c.log.WithField("topic", msg.Topic).Warn("No handler registered for queue")
		return nil
	}
	if len(msg.Key) == 0 || len(msg.Value) == 0 {
		return fmt.Errorf("message without key or value")
	}

	syncMsg := models.SyncMessage{
		Queue:   msg.Topic,
		Key:     string(msg.Key),
		Value:   string(msg.Value),
		TraceID: uuid.NewString(),
	}
	entry := c.log.WithFields(logrus.Fields{
		"queue":    syncMsg.Queue,
		"key":      syncMsg.Key,
		"value":    syncMsg.Value,
		"trace_id": syncMsg.TraceID,
	})

	// задача переживает остановку consumer: начатая обработка доводится до конца
	ctx := context.WithoutCancel(c.baseContext())
	admitted := c.pool.Submit(func() {
		if err := handler.SingleProcess(ctx, syncMsg); err != nil {
			entry.WithError(err).Warn("Sync message processing failed")
		}
	})
	if !admitted {
		entry.Warn("Worker pool saturated, message discarded")
	}
	return nil
}

func (c *Consumer) baseContext() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}
