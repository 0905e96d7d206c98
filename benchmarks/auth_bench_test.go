package benchmarks

import (
	"context"
	"testing"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/benchmarks/mocks"
	"gitlab.com/timkado/api/daisi-panel-service/benchmarks/utils"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/logger"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

var (
	testTenantID = "tenant-123"
	testClientID = "client-456"
	testAdminID  = "admin-789"
)

// setupAuthBenchmark creates a test environment for authentication benchmarks
func setupAuthBenchmark(b *testing.B) (*application.AuthService, *utils.TokenGenerator) {
	b.Helper()
	mockConfig := mocks.NewMockConfigProvider()
	authService := application.NewAuthService(logger.NewNop(), mockConfig)
	return authService, utils.NewTokenGenerator(mockConfig.Get().Auth.SessionTokenAESKey)
}

// BenchmarkSessionTokenValidation measures decrypting and validating session tokens.
func BenchmarkSessionTokenValidation(b *testing.B) {
	authService, tokenGen := setupAuthBenchmark(b)

	clientToken, err := tokenGen.GenerateClientToken(testClientID, testTenantID, time.Hour)
	if err != nil {
		b.Fatalf("Failed to generate client token: %v", err)
	}
	adminToken, err := tokenGen.GenerateAdminToken(testAdminID, time.Hour)
	if err != nil {
		b.Fatalf("Failed to generate admin token: %v", err)
	}
	expiredToken, err := tokenGen.GenerateExpiredToken(testClientID, testTenantID)
	if err != nil {
		b.Fatalf("Failed to generate expired token: %v", err)
	}
	ctx := context.Background()

	b.Run("ClientToken", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := authService.ValidateSessionToken(ctx, clientToken); err != nil {
				b.Errorf("Token validation failed: %v", err)
			}
		}
	})

	b.Run("AdminToken", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := authService.ValidateSessionToken(ctx, adminToken); err != nil {
				b.Errorf("Token validation failed: %v", err)
			}
		}
	})

	b.Run("ExpiredToken", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := authService.ValidateSessionToken(ctx, expiredToken); err == nil {
				b.Error("Expected expired token to fail validation")
			}
		}
	})

	b.Run("InvalidToken", func(b *testing.B) {
		invalid := tokenGen.GenerateInvalidToken()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := authService.ValidateSessionToken(ctx, invalid); err == nil {
				b.Error("Expected invalid token to fail validation")
			}
		}
	})
}

// BenchmarkSessionTokenMint measures sealing new session tokens.
func BenchmarkSessionTokenMint(b *testing.B) {
	authService, _ := setupAuthBenchmark(b)
	ctx := context.Background()
	info := domain.CurrentUserInfo{ID: testClientID, Table: domain.SessionTableClients, TenantID: testTenantID}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := authService.MintSessionToken(ctx, info); err != nil {
			b.Errorf("Mint failed: %v", err)
		}
	}
}

// BenchmarkConcurrentTokenValidation measures validation under parallel load.
func BenchmarkConcurrentTokenValidation(b *testing.B) {
	authService, tokenGen := setupAuthBenchmark(b)
	token, err := tokenGen.GenerateClientToken(testClientID, testTenantID, time.Hour)
	if err != nil {
		b.Fatalf("Failed to generate token: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := authService.ValidateSessionToken(ctx, token); err != nil {
				b.Errorf("Token validation failed: %v", err)
			}
		}
	})
}
