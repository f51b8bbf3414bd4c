package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	"github.com/zatekoja/reviewgate/backend/pkg/config"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

func unreachableDatabaseConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "reviewgate",
			Password: "not-the-placeholder",
			Database: "reviewgate",
			SSLMode:  "disable",
		},
		Store: config.StoreConfig{Driver: config.StoreDriverPostgres},
	}
}

func TestOpenStore_UnreachableDatabaseStillBuildsStore(t *testing.T) {
	cfg := unreachableDatabaseConfig()
	require.True(t, cfg.StoreConfigured())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	documentStore, closeStore := openStore(ctx, cfg, nil)
	defer closeStore()
	require.NotNil(t, documentStore)

	gateway := services.NewPersistenceGateway(documentStore, cfg.StoreConfigured(), services.NewNoticeBoard(0), nil)
	require.True(t, gateway.Configured())

	_, err := gateway.Append(context.Background(), entities.NewPositiveRecord(5, time.Now()))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeWriteFailure))
	assert.False(t, apperrors.IsType(err, apperrors.ErrorTypeStoreUnconfigured))

	err = gateway.DeleteOne(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDeleteFailure))

	doc, err := repositories.NewDocument("", time.Now(), entities.NewPositiveRecord(4, time.Now()))
	require.NoError(t, err)
	_, err = documentStore.Add(context.Background(), services.FeedbackCollection, doc)
	assert.Equal(t, repositories.StoreCodeUnavailable, repositories.StoreErrorCodeOf(err))
}

func TestOpenStore_PlaceholderCredentialsLeaveStoreUnset(t *testing.T) {
	cfg := unreachableDatabaseConfig()
	cfg.Database.Password = config.PlaceholderCredential

	documentStore, closeStore := openStore(context.Background(), cfg, nil)
	defer closeStore()
	assert.Nil(t, documentStore)
}

func TestOpenStore_MemoryDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverMemory}}

	documentStore, closeStore := openStore(context.Background(), cfg, nil)
	defer closeStore()
	assert.NotNil(t, documentStore)
}
