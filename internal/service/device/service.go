package device

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/queue"
	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ports"
)

const cacheTTL = 30 * time.Second

type Service struct {
	repo  ports.ChargerRepository
	cache ports.Cache
	mq    queue.MessageQueue
	log   *zap.Logger
}

func NewService(repo ports.ChargerRepository, cache ports.Cache, mq queue.MessageQueue, log *zap.Logger) ports.DeviceService {
	return &Service{
		repo:  repo,
		cache: cache,
		mq:    mq,
		log:   log,
	}
}

func cacheKey(id string) string {
	return "charger:" + domain.NormalizeSerial(id)
}

func (s *Service) GetCharger(ctx context.Context, id string) (*domain.Charger, error) {
	id = domain.NormalizeSerial(id)

	if cached, err := s.cache.Get(ctx, cacheKey(id)); err == nil && cached != "" {
		var c domain.Charger
		if err := json.Unmarshal([]byte(cached), &c); err == nil {
			return &c, nil
		}
		// Stale or corrupt entry, fall through to the database.
		_ = s.cache.Delete(ctx, cacheKey(id))
	}

	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	if data, err := json.Marshal(c); err == nil {
		if err := s.cache.Set(ctx, cacheKey(id), string(data), cacheTTL); err != nil {
			s.log.Debug("Failed to cache charger", zap.String("charger_id", id), zap.Error(err))
		}
	}
	return c, nil
}

func (s *Service) ListChargers(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
	id = domain.NormalizeSerial(id)

	var err error
	if connector > 0 {
		err = s.repo.UpdateConnectorStatus(ctx, id, connector, status)
	} else {
		err = s.repo.UpdateStatus(ctx, id, status)
	}
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.publish("gateway.charger.status", map[string]interface{}{
		"charger_id": id,
		"connector":  connector,
		"status":     status,
	})
	return nil
}

func (s *Service) MarkConnected(ctx context.Context, id string, protocol string) error {
	id = domain.NormalizeSerial(id)

	if err := s.repo.SetConnected(ctx, id, true); err != nil {
		return err
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"protocol_version": protocol,
		"last_seen":        time.Now().UTC(),
	}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) MarkDisconnected(ctx context.Context, id string) error {
	id = domain.NormalizeSerial(id)

	if err := s.repo.SetConnected(ctx, id, false); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, domain.ChargerStatusOffline); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) RecordBoot(ctx context.Context, id, vendor, model, firmware string) error {
	id = domain.NormalizeSerial(id)
	now := time.Now().UTC()

	fields := map[string]interface{}{
		"last_boot_at": now,
		"last_seen":    now,
	}
	if vendor != "" {
		fields["vendor"] = vendor
	}
	if model != "" {
		fields["model"] = model
	}
	if firmware != "" {
		fields["firmware_version"] = firmware
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) Heartbeat(ctx context.Context, id string) error {
	return s.repo.UpdateFields(ctx, domain.NormalizeSerial(id), map[string]interface{}{
		"last_seen": time.Now().UTC(),
	})
}

// CacheConfigValue folds a confirmed configuration change into the stored
// snapshot so reads do not require a device round trip.
func (s *Service) CacheConfigValue(ctx context.Context, id, key, value string) error {
	id = domain.NormalizeSerial(id)

	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}

	snapshot := map[string]string{}
	if c.ConfigSnapshot != "" {
		if err := json.Unmarshal([]byte(c.ConfigSnapshot), &snapshot); err != nil {
			s.log.Warn("Discarding unreadable config snapshot",
				zap.String("charger_id", id), zap.Error(err))
			snapshot = map[string]string{}
		}
	}
	snapshot[key] = value

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"config_snapshot": string(data),
	}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) SetLocalListVersion(ctx context.Context, id string, version int) error {
	id = domain.NormalizeSerial(id)

	if err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"local_list_version": version,
	}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.log.Debug("Cache invalidation failed", zap.String("charger_id", id), zap.Error(err))
	}
}

func (s *Service) publish(subject string, event map[string]interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Debug("Event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
