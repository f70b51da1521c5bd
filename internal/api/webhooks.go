package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/knapping/internal/eventbus"
	"github.com/annel0/knapping/internal/logging"
)

// OutboundWebhook исходящий webhook, получающий события обработки камня
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required"` // Типы событий или "*"
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // Таймаут в секундах
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// WebhookManager пересылает события шины во внешние webhook'и
type WebhookManager struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*OutboundWebhook
	nextID     uint64
	httpClient *http.Client
	retryDelay time.Duration
	sub        eventbus.Subscription
	wg         sync.WaitGroup
	closed     bool // После Close новые отправки не запускаются
}

// NewWebhookManager создает менеджер исходящих webhook'ов
func NewWebhookManager() *WebhookManager {
	return &WebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		nextID:     1,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: time.Second,
	}
}

// Attach подписывает менеджер на все события шины
func (wm *WebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		wm.Dispatch(ev)
	})
	if err != nil {
		return fmt.Errorf("подписка webhook'ов: %w", err)
	}
	wm.sub = sub
	return nil
}

// Close отписывается от шины и дожидается отправок
func (wm *WebhookManager) Close() {
	wm.mu.Lock()
	wm.closed = true
	wm.mu.Unlock()

	if wm.sub != nil {
		wm.sub.Unsubscribe()
	}
	wm.wg.Wait()
}

// AddWebhook добавляет новый webhook
func (wm *WebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	webhook.ID = wm.nextID
	wm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true

	if webhook.Timeout == 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount == 0 {
		webhook.RetryCount = 3
	}

	wm.webhooks[webhook.ID] = &webhook
	copied := webhook
	return &copied
}

// GetWebhooks возвращает копии всех webhook'ов, упорядоченные по ID
func (wm *WebhookManager) GetWebhooks() []OutboundWebhook {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(wm.webhooks))
	for _, webhook := range wm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// GetWebhook возвращает копию webhook'а по ID
func (wm *WebhookManager) GetWebhook(id uint64) (OutboundWebhook, bool) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	webhook, exists := wm.webhooks[id]
	if !exists {
		return OutboundWebhook{}, false
	}
	return *webhook, true
}

// DeleteWebhook удаляет webhook
func (wm *WebhookManager) DeleteWebhook(id uint64) bool {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if _, exists := wm.webhooks[id]; !exists {
		return false
	}
	delete(wm.webhooks, id)
	return true
}

// EventTypes возвращает типы событий, на которые можно подписаться
func (wm *WebhookManager) EventTypes() []string {
	return eventbus.KnownTypes()
}

// Dispatch отправляет событие всем подписанным webhook'ам.
// После Close события отбрасываются.
func (wm *WebhookManager) Dispatch(ev *eventbus.Envelope) {
	body, err := json.Marshal(ev)
	if err != nil {
		logging.Error("❌ Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}

	wm.mu.RLock()
	defer wm.mu.RUnlock()
	if wm.closed {
		return
	}

	for _, webhook := range wm.webhooks {
		if !webhook.Active || !isSubscribedToEvent(webhook, ev.EventType) {
			continue
		}
		wm.wg.Add(1)
		go func(w *OutboundWebhook) {
			defer wm.wg.Done()
			wm.sendToWebhook(w, ev, body)
		}(webhook)
	}
}

func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribed := range webhook.Events {
		if subscribed == eventType || subscribed == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие конкретному webhook'у с повторами
func (wm *WebhookManager) sendToWebhook(webhook *OutboundWebhook, ev *eventbus.Envelope, body []byte) {
	wm.mu.RLock()
	name, url, secret := webhook.Name, webhook.URL, webhook.Secret
	timeout := time.Duration(webhook.Timeout) * time.Second
	retries := webhook.RetryCount
	wm.mu.RUnlock()

	success := false
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * wm.retryDelay)
		}

		status, err := wm.post(url, secret, ev, body, timeout)
		if err != nil {
			logging.Warn("⚠️ Попытка %d/%d для webhook %s: %v", attempt+1, retries+1, name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			logging.Debug("✅ Событие %s отправлено в webhook %s", ev.EventType, name)
			break
		}
		logging.Warn("⚠️ Webhook %s вернул статус %d на попытке %d", name, status, attempt+1)
	}

	wm.mu.Lock()
	now := time.Now()
	webhook.LastUsed = &now
	if !success {
		webhook.FailureCount++
	}
	wm.mu.Unlock()
}

func (wm *WebhookManager) post(url, secret string, ev *eventbus.Envelope, body []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "knapd/1.0")
	req.Header.Set("X-Event-Type", ev.EventType)
	req.Header.Set("X-Event-ID", ev.ID)
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(body, secret))
	}

	resp, err := wm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// generateSignature генерирует HMAC подпись
func generateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
