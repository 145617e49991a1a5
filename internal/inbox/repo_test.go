package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/enums"
)

func setupInboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS inbox_items (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  group_id TEXT,
  kind TEXT NOT NULL,
  content TEXT NOT NULL,
  entity_type TEXT,
  entity_id TEXT,
  metadata TEXT,
  delivered_by TEXT NOT NULL,
  read_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	require.NoError(t, db.Exec("DELETE FROM inbox_items").Error)
	return db
}

func seedItem(t *testing.T, db *gorm.DB, userID uuid.UUID, mutate func(item *models.InboxItem)) *models.InboxItem {
	t.Helper()

	item := &models.InboxItem{
		ID:          uuid.New(),
		UserID:      &userID,
		Kind:        enums.NotificationKindSystem,
		Content:     "delivered notification",
		DeliveredBy: uuid.New(),
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestInboxListScopesToUser(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()

	mine := seedItem(t, db, user, nil)
	seedItem(t, db, uuid.New(), nil)

	items, cursor, err := repo.List(context.Background(), listInboxParams{UserID: user, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ID)
	assert.Nil(t, cursor)
}

func TestInboxListScopesToGroup(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	group := uuid.New()

	shared := seedItem(t, db, uuid.New(), func(item *models.InboxItem) {
		item.UserID = nil
		item.GroupID = &group
	})
	seedItem(t, db, uuid.New(), nil)
	seedItem(t, db, uuid.New(), func(item *models.InboxItem) {
		other := uuid.New()
		item.UserID = nil
		item.GroupID = &other
	})

	items, cursor, err := repo.List(context.Background(), listInboxParams{GroupID: group, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, shared.ID, items[0].ID)
	assert.Nil(t, cursor)
}

func TestInboxListUnreadOnly(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()
	now := time.Now().UTC()

	unread := seedItem(t, db, user, nil)
	seedItem(t, db, user, func(item *models.InboxItem) {
		item.ReadAt = &now
	})

	items, _, err := repo.List(context.Background(), listInboxParams{UserID: user, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, unread.ID, items[0].ID)
}

func TestInboxListPaginates(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		item := seedItem(t, db, user, nil)
		require.NoError(t, db.Model(&models.InboxItem{}).
			Where("id = ?", item.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
		ids = append(ids, item.ID)
	}

	first, cursor, err := repo.List(context.Background(), listInboxParams{UserID: user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	// Newest first.
	assert.Equal(t, ids[2], first[0].ID)
	assert.Equal(t, ids[1], first[1].ID)

	second, next, err := repo.List(context.Background(), listInboxParams{UserID: user, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, ids[0], second[0].ID)
	assert.Nil(t, next)
}

func TestMarkReadUpdatesOnlyUnread(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()
	item := seedItem(t, db, user, nil)

	result, err := repo.MarkRead(context.Background(), user, item.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.True(t, result.Found)

	// Second call finds the row but no longer updates it.
	result, err = repo.MarkRead(context.Background(), user, item.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.True(t, result.Found)
}

func TestMarkReadOtherUsersItemNotFound(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	item := seedItem(t, db, uuid.New(), nil)

	result, err := repo.MarkRead(context.Background(), uuid.New(), item.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.False(t, result.Found)
}

func TestMarkAllReadCountsUpdatedRows(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()
	now := time.Now().UTC()

	seedItem(t, db, user, nil)
	seedItem(t, db, user, nil)
	seedItem(t, db, user, func(item *models.InboxItem) {
		item.ReadAt = &now
	})
	seedItem(t, db, uuid.New(), nil)

	count, err := repo.MarkAllRead(context.Background(), user, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestDeleteOlderThanPrunesAgedRows(t *testing.T) {
	db := setupInboxTestDB(t)
	repo := NewRepository(db)
	user := uuid.New()
	now := time.Now().UTC()

	old := seedItem(t, db, user, nil)
	require.NoError(t, db.Model(&models.InboxItem{}).
		Where("id = ?", old.ID).
		UpdateColumn("created_at", now.Add(-100*24*time.Hour)).Error)
	fresh := seedItem(t, db, user, nil)

	deleted, err := repo.DeleteOlderThan(context.Background(), now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []models.InboxItem
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}
