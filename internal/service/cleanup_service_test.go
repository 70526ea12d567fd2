package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edupath/assessment-api/pkg/config"
)

type recordingStore struct {
	mu       sync.Mutex
	deleted  []string
	failures int
}

func (s *recordingStore) Delete(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("transient storage error")
	}
	s.deleted = append(s.deleted, locator)
	return nil
}

func (s *recordingStore) deletedLocators() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.deleted...)
}

func TestCleanupServiceDeletesScheduledBlobs(t *testing.T) {
	store := &recordingStore{}
	svc := NewCleanupService(store, nil, nil, config.CleanupConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.ScheduleDelete("2024/01/orphan.pdf")
	require.Eventually(t, func() bool {
		return len(store.deletedLocators()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"2024/01/orphan.pdf"}, store.deletedLocators())
}

func TestCleanupServiceRetriesFailedDeletes(t *testing.T) {
	store := &recordingStore{failures: 1}
	svc := NewCleanupService(store, nil, nil, config.CleanupConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.ScheduleDelete("2024/01/flaky.pdf")
	require.Eventually(t, func() bool {
		return len(store.deletedLocators()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCleanupServiceIgnoresEmptyLocator(t *testing.T) {
	store := &recordingStore{}
	svc := NewCleanupService(store, nil, nil, config.CleanupConfig{Workers: 1})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.ScheduleDelete("")
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, store.deletedLocators())
}
