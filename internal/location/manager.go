package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"paraderos-agent/internal/models"
	"paraderos-agent/internal/tasks"
)

// Manager implements Source for a single task name. While updates run it
// polls the provider every MinInterval and invokes the named task with
// batches of filtered samples.
type Manager struct {
	taskName    string
	tasks       *tasks.Registry
	provider    Provider
	permissions *Permissions

	updater *updater
	mutex   sync.Mutex
}

type updater struct {
	cfg    UpdatesConfig
	filter *DeltaFilter
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager binds a provider and permission prompts to the task that
// receives the sample batches
func NewManager(taskName string, registry *tasks.Registry, provider Provider, permissions *Permissions) *Manager {
	return &Manager{
		taskName:    taskName,
		tasks:       registry,
		provider:    provider,
		permissions: permissions,
	}
}

func (m *Manager) RequestForegroundPermission(ctx context.Context) (PermissionStatus, error) {
	return m.permissions.RequestForeground(ctx)
}

func (m *Manager) RequestBackgroundPermission(ctx context.Context) (PermissionStatus, error) {
	return m.permissions.RequestBackground(ctx)
}

// StartContinuousUpdates is a no-op when updates are already running
func (m *Manager) StartContinuousUpdates(ctx context.Context, cfg UpdatesConfig) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.updater != nil {
		return nil
	}
	// a restarted process has not prompted yet but the platform may already
	// hold the grants
	if !m.permissions.Resolve(ctx) {
		return ErrPermissionDenied
	}
	if !m.tasks.IsDefined(m.taskName) {
		return fmt.Errorf("%w: %s", tasks.ErrNotDefined, m.taskName)
	}
	if cfg.MinInterval <= 0 {
		return fmt.Errorf("location: invalid update interval %s", cfg.MinInterval)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	u := &updater{
		cfg:    cfg,
		filter: NewDeltaFilter(cfg.MinDistanceMeters),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.updater = u
	go m.run(loopCtx, u)

	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("📍 [LOCATION] Updates STARTED for %s", m.taskName)
	log.Printf("   Accuracy: %s, every %s / %.0fm, batch window %s", cfg.Accuracy, cfg.MinInterval, cfg.MinDistanceMeters, cfg.DeferredBatchWindow)
	if cfg.ShowIndicator {
		log.Printf("   Notice: %s - %s", cfg.Notice.Title, cfg.Notice.Body)
	}
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.updater != nil
}

// StopContinuousUpdates prevents future deliveries. A delivery already in
// flight runs to completion.
func (m *Manager) StopContinuousUpdates(ctx context.Context) error {
	m.mutex.Lock()
	u := m.updater
	m.updater = nil
	m.mutex.Unlock()

	if u == nil {
		return nil
	}
	u.cancel()
	log.Printf("🔴 [LOCATION] Updates STOPPED for %s", m.taskName)
	return nil
}

// CurrentPosition returns a one-shot fix. Requires the foreground grant.
func (m *Manager) CurrentPosition(ctx context.Context, accuracy Accuracy) (models.PositionSample, error) {
	status, err := m.permissions.RequestForeground(ctx)
	if err != nil {
		return models.PositionSample{}, err
	}
	if status != PermissionGranted {
		return models.PositionSample{}, ErrPermissionDenied
	}
	return m.provider.Fix(ctx, accuracy)
}

// Close stops updates and waits for the delivery loop to exit
func (m *Manager) Close() {
	m.mutex.Lock()
	u := m.updater
	m.updater = nil
	m.mutex.Unlock()

	if u != nil {
		u.cancel()
		<-u.done
	}
}

func (m *Manager) run(ctx context.Context, u *updater) {
	defer close(u.done)

	ticker := time.NewTicker(u.cfg.MinInterval)
	defer ticker.Stop()

	var (
		pending      []models.PositionSample
		lastDelivery time.Time
	)

	poll := func() {
		sample, err := m.provider.Fix(ctx, u.cfg.Accuracy)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrNoFix) {
				log.Printf("⚠️  [LOCATION] No fix: %v", err)
			}
			m.tasks.Invoke(context.Background(), m.taskName, nil, err)
			return
		}
		if !u.filter.Accept(sample) {
			return
		}

		pending = append(pending, sample)
		if time.Since(lastDelivery) < u.cfg.DeferredBatchWindow {
			return
		}

		batch := Batch{Samples: pending}
		pending = nil
		lastDelivery = time.Now()
		m.tasks.Invoke(context.Background(), m.taskName, batch, nil)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
