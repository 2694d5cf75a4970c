package logconsumer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/model"
)

func openTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Log{}, &model.Organization{}))

	prevDB := model.DB
	prevSQLite := common.UsingSQLite
	model.DB = db
	common.UsingSQLite = true
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		model.DB = prevDB
		common.UsingSQLite = prevSQLite
	})
}

func openTestRedis(t *testing.T) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.RDB = nil })
}

func marshalLog(t *testing.T, l *model.Log) []byte {
	t.Helper()
	payload, err := json.Marshal(l)
	require.NoError(t, err)
	return payload
}

func strPtr(s string) *string { return &s }

func TestHandleBatch_InsertsAndStripsRetention(t *testing.T) {
	openTestDB(t)

	require.NoError(t, model.DB.Create(&model.Organization{
		ID: "org-none", RetentionLevel: model.RetentionNone,
	}).Error)
	require.NoError(t, model.DB.Create(&model.Organization{
		ID: "org-retain", RetentionLevel: model.RetentionRetain,
	}).Error)

	now := time.Now().UTC()
	payloads := [][]byte{
		marshalLog(t, &model.Log{RequestID: "stripped", OrganizationID: "org-none",
			CreatedAt: now, Content: strPtr("secret"), PromptTokens: 7}),
		marshalLog(t, &model.Log{RequestID: "kept", OrganizationID: "org-retain",
			CreatedAt: now, Content: strPtr("visible")}),
		[]byte("not json"),
	}
	require.NoError(t, handleBatch(context.Background(), payloads))

	var stripped, kept model.Log
	require.NoError(t, model.DB.First(&stripped, "request_id = ?", "stripped").Error)
	require.NoError(t, model.DB.First(&kept, "request_id = ?", "kept").Error)
	require.Nil(t, stripped.Content)
	require.Equal(t, 7, stripped.PromptTokens)
	require.NotNil(t, kept.Content)
	require.Equal(t, "visible", *kept.Content)
}

func TestPopBatch_DrainsQueue(t *testing.T) {
	openTestRedis(t)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, rdb.PushLog(ctx, marshalLog(t, &model.Log{RequestID: id})))
	}

	payloads := popBatch(ctx)
	require.Len(t, payloads, 3)

	// FIFO: the first pushed record comes out first.
	var first model.Log
	require.NoError(t, json.Unmarshal(payloads[0], &first))
	require.Equal(t, "a", first.RequestID)
}

func TestRequeueAll_PreservesMessages(t *testing.T) {
	openTestRedis(t)

	ctx := context.Background()
	payloads := [][]byte{
		marshalLog(t, &model.Log{RequestID: "r1"}),
		marshalLog(t, &model.Log{RequestID: "r2"}),
	}
	requeueAll(ctx, payloads)

	got := popBatch(ctx)
	require.Len(t, got, 2)
}

func TestDecodeBatch_SeparatesBadPayloads(t *testing.T) {
	logs, bad := decodeBatch([][]byte{
		marshalLog(t, &model.Log{RequestID: "ok"}),
		[]byte("{broken"),
	})
	require.Len(t, logs, 1)
	require.Equal(t, "ok", logs[0].RequestID)
	require.Len(t, bad, 1)
}
