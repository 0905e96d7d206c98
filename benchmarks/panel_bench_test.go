package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/benchmarks/mocks"
	"gitlab.com/timkado/api/daisi-panel-service/benchmarks/utils"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/logger"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

type panelBenchEnv struct {
	manager  *application.PanelManager
	contacts *mocks.MockContactRepository
	unread   *mocks.MockUnreadStore
	changes  *mocks.MockChangeSubscriber
}

func setupPanelBenchmark(b *testing.B, contactsPerTenant int) *panelBenchEnv {
	b.Helper()
	now := time.Now()
	contacts := mocks.NewMockContactRepository()
	contacts.SetContacts(testTenantID, utils.GenerateContacts(testTenantID, contactsPerTenant))
	contacts.SetContacts("tenant-other", utils.GenerateContacts("tenant-other", contactsPerTenant))
	messages := mocks.NewMockMessageRepository(utils.GenerateEvents(testTenantID, 500, now))
	unread := mocks.NewMockUnreadStore()
	changes := mocks.NewMockChangeSubscriber()

	manager := application.NewPanelManager(logger.NewNop(), mocks.NewMockConfigProvider(), contacts, messages, unread, changes)
	b.Cleanup(manager.CloseAll)
	return &panelBenchEnv{manager: manager, contacts: contacts, unread: unread, changes: changes}
}

func benchmarkOperator() *domain.CurrentUserInfo {
	return &domain.CurrentUserInfo{
		ID:        testClientID,
		Table:     domain.SessionTableClients,
		TenantID:  testTenantID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// BenchmarkPanelSessionLifecycle measures opening and closing a session with
// both panels started.
func BenchmarkPanelSessionLifecycle(b *testing.B) {
	env := setupPanelBenchmark(b, 500)
	user := benchmarkOperator()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session, err := env.manager.Open(ctx, user, "", domain.Filters{}, &utils.CountingSink{})
		if err != nil {
			b.Fatalf("Open failed: %v", err)
		}
		env.manager.Close(session.ID())
	}
}

// BenchmarkQueryContacts measures the one-shot contact query used by the HTTP API.
func BenchmarkQueryContacts(b *testing.B) {
	for _, n := range []int{100, 1_000, 5_000} {
		b.Run(fmt.Sprintf("Contacts_%d", n), func(b *testing.B) {
			env := setupPanelBenchmark(b, n)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := env.manager.QueryContacts(ctx, testTenantID, domain.Filters{}); err != nil {
					b.Errorf("QueryContacts failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkUnreadFanOut measures pushed unread updates reaching many sessions.
func BenchmarkUnreadFanOut(b *testing.B) {
	for _, sessions := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("Sessions_%d", sessions), func(b *testing.B) {
			env := setupPanelBenchmark(b, 200)
			user := benchmarkOperator()
			ctx := context.Background()
			for i := 0; i < sessions; i++ {
				if _, err := env.manager.Open(ctx, user, "", domain.Filters{}, &utils.CountingSink{}); err != nil {
					b.Fatalf("Open failed: %v", err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				env.unread.Publish(domain.UnreadUpdate{
					TenantID:  testTenantID,
					ContactID: fmt.Sprintf("%s-user-%d", testTenantID, i%200),
					Count:     i % 9,
				})
			}
		})
	}
}
