package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
)

// Publisher kafka 生产者的最小接口
type Publisher interface {
	Send(ctx context.Context, topic, key string, value []byte) error
}

type RelayConfig struct {
	EmailTopic string
	PushTopic  string
	BatchSize  int
	Interval   time.Duration
	MaxRetry   int
}

// OutboxRelayer 从 outbox 表读取待投递事件交给 kafka
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	publisher Publisher
	cfg       RelayConfig
}

func NewOutboxRelayer(repo *mysql.OutboxRepository, publisher Publisher, cfg RelayConfig) *OutboxRelayer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 5
	}
	return &OutboxRelayer{repo: repo, publisher: publisher, cfg: cfg}
}

// Run outbox启动器，ctx 取消时返回
func (r *OutboxRelayer) Run(ctx context.Context) error {
	logger := log.With().Str("component", "outbox-relayer").Logger()
	logger.Info().Dur("interval", r.cfg.Interval).Msg("outbox relayer started")
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("outbox relayer stopped")
			return nil
		case <-t.C:
			r.DrainOnce(logger.WithContext(ctx))
		}
	}
}

// DrainOnce 投递一批，返回成功条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("outbox query failed")
		return 0
	}
	sent := 0
	for i := range rows {
		ob := rows[i]
		topic := r.topic(ob.Channel)
		err := r.publisher.Send(ctx, topic, pkg.MakeKeyFromID(ob.UserID), []byte(ob.Payload))
		if err != nil {
			result := "retry"
			if ob.Retry+1 >= r.cfg.MaxRetry {
				result = "failed"
			}
			log.Ctx(ctx).Warn().Err(err).Uint64("outbox", ob.ID).Int("retry", ob.Retry+1).Msg("outbox send failed")
			metrics.OutboxRelayedTotal.WithLabelValues(string(ob.Channel), result).Inc()
			if uerr := r.repo.MarkRetry(ctx, ob, r.cfg.MaxRetry); uerr != nil {
				log.Ctx(ctx).Error().Err(uerr).Uint64("outbox", ob.ID).Msg("outbox retry update failed")
			}
			continue
		}
		if err := r.repo.MarkSent(ctx, ob.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).Uint64("outbox", ob.ID).Msg("outbox mark sent failed")
			continue
		}
		metrics.OutboxRelayedTotal.WithLabelValues(string(ob.Channel), "sent").Inc()
		sent++
	}
	return sent
}

func (r *OutboxRelayer) topic(ch model.Channel) string {
	if ch == model.ChannelEmail {
		return r.cfg.EmailTopic
	}
	return r.cfg.PushTopic
}

// EmailConsumer 消费 email topic，按最新偏好发送邮件
type EmailConsumer struct {
	mailer   pkg.Mailer
	prefs    *mysql.NotificationRepository
	outbox   *mysql.OutboxRepository
	baseURL  string
	maxRetry int
}

func NewEmailConsumer(mailer pkg.Mailer, prefs *mysql.NotificationRepository, outbox *mysql.OutboxRepository, baseURL string, maxRetry int) *EmailConsumer {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &EmailConsumer{mailer: mailer, prefs: prefs, outbox: outbox, baseURL: baseURL, maxRetry: maxRetry}
}

// Handle 格式错误或已退订的消息直接丢弃。
// 发送失败时写回 outbox，写回成功才返回 nil 让消费者提交 offset
func (c *EmailConsumer) Handle(ctx context.Context, key, value []byte) error {
	logger := log.With().Str("component", "email-consumer").Bytes("key", key).Logger()
	var msg model.DispatchMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		logger.Warn().Err(err).Msg("drop malformed message")
		return nil
	}
	if msg.Channel != model.ChannelEmail || msg.Email == "" {
		return nil
	}
	pref, err := c.prefs.Preference(ctx, msg.UserID)
	if err != nil {
		return err
	}
	if !pref.EmailAllowed(msg.Type) {
		logger.Debug().Uint64("user", msg.UserID).Str("type", string(msg.Type)).Msg("user unsubscribed, skip")
		return nil
	}
	body := pkg.NotificationHTML(c.baseURL, msg.Name, msg.Title, msg.Message, msg.Link, msg.UnsubscribeToken, string(msg.Type))
	if err := c.mailer.Send(msg.Email, msg.Title, body); err != nil {
		logger.Warn().Err(err).Uint64("user", msg.UserID).Int("attempt", msg.Attempt+1).Msg("notification email failed")
		return c.requeue(ctx, msg)
	}
	logger.Info().Uint64("user", msg.UserID).Str("type", string(msg.Type)).Msg("notification email sent")
	return nil
}

// requeue 次数用尽时记为失败行，后台看板可见
func (c *EmailConsumer) requeue(ctx context.Context, msg model.DispatchMessage) error {
	msg.Attempt++
	status := model.OutboxPending
	result := "retry"
	if msg.Attempt >= c.maxRetry {
		status = model.OutboxFailed
		result = "failed"
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	row := &model.Outbox{Channel: model.ChannelEmail, UserID: msg.UserID, Payload: string(b), Status: status, Retry: msg.Attempt}
	if err := c.outbox.Requeue(ctx, row); err != nil {
		return err
	}
	metrics.EmailDeliveryTotal.WithLabelValues(result).Inc()
	return nil
}
