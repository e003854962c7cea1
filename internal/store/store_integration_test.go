//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"station-core/internal/event"
	"station-core/internal/model"
	"station-core/pkg/database"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("station"),
		tcpostgres.WithUsername("station"),
		tcpostgres.WithPassword("station"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.ConnectPostgres(dsn, false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return New(db)
}

func TestRegistrationLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	actor := common.HexToAddress("0x01")
	machine := common.HexToAddress("0xaa")
	hash := common.HexToHash("0xbeef")

	_, err := s.FindByActor(ctx, actor)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SavePending(ctx, actor, hash))
	r, err := s.FindByActor(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationPending, r.State)
	assert.Empty(t, r.Machine)

	require.NoError(t, s.Confirm(ctx, actor, machine, hash))
	r, err = s.FindByActor(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationConfirmed, r.State)
	assert.Equal(t, machine.Hex(), r.Machine)

	byMachine, err := s.FindByMachine(ctx, machine)
	require.NoError(t, err)
	assert.Equal(t, actor.Hex(), byMachine.Actor)

	// 登记与 outbox 同事务
	msgs, err := s.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, event.TopicRegistration, msgs[0].Topic)
	assert.Equal(t, actor.Hex(), msgs[0].Key)

	require.NoError(t, s.MarkSent(ctx, msgs[0].ID))
	msgs, err = s.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMarkUnresolved(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	actor := common.HexToAddress("0x02")
	hash := common.HexToHash("0xcafe")

	require.NoError(t, s.SavePending(ctx, actor, hash))
	require.NoError(t, s.MarkUnresolved(ctx, actor, hash))
	r, err := s.FindByActor(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationUnresolved, r.State)

	// 已确认的登记不会被覆盖
	confirmed := common.HexToAddress("0x03")
	require.NoError(t, s.Confirm(ctx, confirmed, common.HexToAddress("0xbb"), hash))
	require.NoError(t, s.MarkUnresolved(ctx, confirmed, common.HexToHash("0x01")))
	r, err = s.FindByActor(ctx, confirmed)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationConfirmed, r.State)
	assert.Equal(t, hash.Hex(), r.TxHash)
}

func TestPendingTransactions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	hash := common.HexToHash("0x01")

	p := &model.PendingTransaction{TxHash: hash.Hex(), Kind: "ExecuteGeneric", Fingerprint: "fp"}
	require.NoError(t, s.RecordPending(ctx, p))
	// 重复记录被忽略
	require.NoError(t, s.RecordPending(ctx, &model.PendingTransaction{TxHash: hash.Hex(), Kind: "ExecuteGeneric", Fingerprint: "fp"}))

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.TouchPending(ctx, hash))
	got, err := s.FindPending(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, s.ResolvePending(ctx, hash, model.TxReverted, "bad nonce"))
	list, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err = s.FindPending(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "bad nonce", got.Reason)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)
}
