package session

import (
	"context"
	"errors"

	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/cryptox"
)

const deviceKeySize = 32

// deviceSealer loads the per-device sealing key, creating it on first use.
func (m *Manager) deviceSealer(ctx context.Context) (*cryptox.Sealer, error) {
	m.sealerOnce.Do(func() {
		var key []byte
		ok, err := m.store.Get(ctx, store.KeyDeviceKey, &key)
		if err != nil || !ok || len(key) != deviceKeySize {
			key = common.GenerateRandByteArray(deviceKeySize)
			if err := m.store.Set(ctx, store.KeyDeviceKey, key); err != nil {
				m.sealerErr = err
				return
			}
		}
		m.sealer, m.sealerErr = cryptox.NewSealer(key)
	})
	return m.sealer, m.sealerErr
}

func (m *Manager) seal(ctx context.Context, plain string) (string, error) {
	s, err := m.deviceSealer(ctx)
	if err != nil {
		return "", err
	}
	return s.Seal([]byte(plain)), nil
}

// open reverses seal. Values stored before sealing existed are returned
// as is; values sealed on another device cannot be opened here.
func (m *Manager) open(sealed string) (string, bool) {
	ctx := context.Background()
	s, err := m.deviceSealer(ctx)
	if err != nil {
		m.logger.Error(ctx, "device key unavailable", "error", err)
		return "", false
	}
	plain, err := s.Open(sealed)
	if errors.Is(err, cryptox.ErrMalformedSealed) {
		return sealed, true
	}
	if err != nil {
		m.logger.Warn(ctx, "api key sealed elsewhere, ignoring", "error", err)
		return "", false
	}
	return string(plain), true
}
