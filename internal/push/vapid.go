package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/frinder/internal/logger"
)

// VAPIDKeys: пара ключей Web Push. Публичный ключ API отдаёт браузеру через /api/config/push.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

var errEmptyKeys = errors.New("empty VAPID keys")

func (k *VAPIDKeys) valid() bool { return k.PublicKey != "" && k.PrivateKey != "" }

// GenerateVAPIDKeys создаёт новую пару (push -gen-vapid и первый запуск без файла).
func GenerateVAPIDKeys() (*VAPIDKeys, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("push.GenerateVAPIDKeys: %w", err)
	}
	return &VAPIDKeys{PublicKey: pub, PrivateKey: priv}, nil
}

// LoadVAPIDKeys: сначала VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY, затем файл (EnsureVAPIDKeys).
func LoadVAPIDKeys() (*VAPIDKeys, error) {
	keys := &VAPIDKeys{PublicKey: os.Getenv("VAPID_PUBLIC_KEY"), PrivateKey: os.Getenv("VAPID_PRIVATE_KEY")}
	if keys.valid() {
		return keys, nil
	}
	return EnsureVAPIDKeys(keysPath(""))
}

func keysPath(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv("VAPID_KEYS_FILE"); p != "" {
		return p
	}
	return "config/vapid.json"
}

// EnsureVAPIDKeys читает ключи из файла, при отсутствии генерирует и сохраняет.
// Несохранённая пара всё равно возвращается: пуши работают до перезапуска.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	path = keysPath(path)
	keys, err := readKeys(path)
	if err == nil {
		return keys, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		logger.Errorf("push: %s: %v, генерируем новые ключи", path, err)
	}
	if keys, err = GenerateVAPIDKeys(); err != nil {
		return nil, err
	}
	if err := writeKeys(path, keys); err != nil {
		logger.Errorf("push: VAPID-ключи не сохранены в %s: %v", path, err)
		return keys, nil
	}
	logger.Infof("push: VAPID-ключи сгенерированы, %s", path)
	return keys, nil
}

func readKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys VAPIDKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("push.readKeys: %w", err)
	}
	if !keys.valid() {
		return nil, errEmptyKeys
	}
	return &keys, nil
}

func writeKeys(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// VAPIDSender шифрует и отправляет уведомление через webpush-go.
type VAPIDSender struct {
	opts *webpush.Options
}

func NewVAPIDSender(keys *VAPIDKeys, subscriber string) *VAPIDSender {
	return &VAPIDSender{opts: &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             30,
		Urgency:         webpush.UrgencyHigh,
	}}
}

func (s *VAPIDSender) Send(ctx context.Context, payload []byte, sub Subscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, s.opts)
	if err != nil {
		return 0, fmt.Errorf("push.VAPIDSender.Send: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
