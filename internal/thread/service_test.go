package thread_test

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/thread"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newService(t *testing.T) (*thread.Service, *gorm.DB) {
	t.Helper()
	db := setupDB(t)
	return thread.NewService(db, zap.NewNop(), nil), db
}

func createConfession(t *testing.T, db *gorm.DB, status models.ConfessionStatus) *models.Confession {
	t.Helper()
	conf := models.Confession{UserID: 1, Content: "something", Status: status}
	require.NoError(t, db.Create(&conf).Error)
	return &conf
}

func TestAddRequiresApprovedConfession(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()

	pending := createConfession(t, db, models.StatusPending)
	_, err := svc.Add(ctx, pending.ID, 7, "too early", models.Media{}, nil)
	require.ErrorIs(t, err, apperr.ErrNotApproved)

	approved := createConfession(t, db, models.StatusApproved)
	c, err := svc.Add(ctx, approved.ID, 7, "hello", models.Media{}, nil)
	require.NoError(t, err)
	assert.Equal(t, approved.ID, c.ConfessionID)
	assert.Nil(t, c.ParentID)
}

func TestAddRejectsEmptyComment(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	conf := createConfession(t, db, models.StatusApproved)

	_, err := svc.Add(t.Context(), conf.ID, 7, "", models.Media{}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	// Media alone is enough.
	_, err = svc.Add(t.Context(), conf.ID, 7, "", models.Media{FileID: "f1", Kind: models.MediaPhoto}, nil)
	require.NoError(t, err)
}

func TestAddReplyValidatesParent(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)
	other := createConfession(t, db, models.StatusApproved)

	missing := uint(9999)
	_, err := svc.Add(ctx, conf.ID, 7, "reply", models.Media{}, &missing)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	root, err := svc.Add(ctx, conf.ID, 7, "root", models.Media{}, nil)
	require.NoError(t, err)

	_, err = svc.Add(ctx, other.ID, 7, "cross thread", models.Media{}, &root.ID)
	require.ErrorIs(t, err, apperr.ErrValidation)

	reply, err := svc.Add(ctx, conf.ID, 8, "reply", models.Media{}, &root.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)
}

func TestDepthFollowsParentChain(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	root, err := svc.Add(ctx, conf.ID, 1, "root", models.Media{}, nil)
	require.NoError(t, err)
	child, err := svc.Add(ctx, conf.ID, 2, "child", models.Media{}, &root.ID)
	require.NoError(t, err)
	grandchild, err := svc.Add(ctx, conf.ID, 3, "grandchild", models.Media{}, &child.ID)
	require.NoError(t, err)

	for i, c := range []*models.Comment{root, child, grandchild} {
		depth, err := svc.Depth(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, i, depth)
	}

	// Replies past the render cap are still accepted.
	parent := grandchild
	for i := 0; i < thread.MaxDepth; i++ {
		next, err := svc.Add(ctx, conf.ID, 4, "deep", models.Media{}, &parent.ID)
		require.NoError(t, err)
		parent = next
	}
	depth, err := svc.Depth(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2+thread.MaxDepth, depth)
}

func TestListRootsPaginatesWithoutGaps(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	var created []uint
	for i := 0; i < 25; i++ {
		c, err := svc.Add(ctx, conf.ID, int64(i), "root comment", models.Media{}, nil)
		require.NoError(t, err)
		created = append(created, c.ID)
	}
	// Replies must not count against root pagination.
	_, err := svc.Add(ctx, conf.ID, 99, "reply", models.Media{}, &created[0])
	require.NoError(t, err)

	var seen []uint
	for page := 1; ; page++ {
		items, total, err := svc.ListRoots(ctx, conf.ID, page, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		if len(items) == 0 {
			break
		}
		for _, c := range items {
			seen = append(seen, c.ID)
		}
	}
	assert.Equal(t, created, seen)
}

func TestListRepliesReturnsFullSetInOrder(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	root, err := svc.Add(ctx, conf.ID, 1, "root", models.Media{}, nil)
	require.NoError(t, err)

	var want []uint
	for i := 0; i < 30; i++ {
		r, err := svc.Add(ctx, conf.ID, int64(i), "reply", models.Media{}, &root.ID)
		require.NoError(t, err)
		want = append(want, r.ID)
	}

	replies, err := svc.ListReplies(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 30)
	for i, r := range replies {
		assert.Equal(t, want[i], r.ID)
	}
}

func TestSubtreeCollectsNestedReplies(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	root, err := svc.Add(ctx, conf.ID, 1, "root", models.Media{}, nil)
	require.NoError(t, err)
	child, err := svc.Add(ctx, conf.ID, 2, "child", models.Media{}, &root.ID)
	require.NoError(t, err)
	_, err = svc.Add(ctx, conf.ID, 3, "grandchild", models.Media{}, &child.ID)
	require.NoError(t, err)

	roots, total, err := svc.ListRoots(ctx, conf.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	nodes, err := svc.Subtree(ctx, roots)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Replies, 1)
	require.Len(t, nodes[0].Replies[0].Replies, 1)
}

func TestListRootsClampsPageSize(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	total := thread.MaxPageSize + 5
	for i := 0; i < total; i++ {
		require.NoError(t, db.Create(&models.Comment{
			ConfessionID: conf.ID,
			UserID:       int64(i),
			Content:      "root",
		}).Error)
	}

	items, count, err := svc.ListRoots(ctx, conf.ID, 1, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(total), count)
	assert.Len(t, items, thread.MaxPageSize)
}

func TestListByUserNewestFirst(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	var ids []uint
	for i := 0; i < 3; i++ {
		c, err := svc.Add(ctx, conf.ID, 7, "mine", models.Media{}, nil)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := svc.Add(ctx, conf.ID, 8, "someone else", models.Media{}, nil)
	require.NoError(t, err)

	mine, err := svc.ListByUser(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, ids[2], mine[0].ID)
	assert.Equal(t, ids[1], mine[1].ID)

	n, err := svc.CountByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCountForConfessionIncludesNested(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)
	other := createConfession(t, db, models.StatusApproved)

	root, err := svc.Add(ctx, conf.ID, 1, "root", models.Media{}, nil)
	require.NoError(t, err)
	_, err = svc.Add(ctx, conf.ID, 2, "reply", models.Media{}, &root.ID)
	require.NoError(t, err)
	_, err = svc.Add(ctx, other.ID, 3, "elsewhere", models.Media{}, nil)
	require.NoError(t, err)

	n, err := svc.CountForConfession(ctx, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSetBotMessageID(t *testing.T) {
	t.Parallel()
	svc, db := newService(t)
	ctx := t.Context()
	conf := createConfession(t, db, models.StatusApproved)

	c, err := svc.Add(ctx, conf.ID, 1, "root", models.Media{}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetBotMessageID(ctx, c.ID, 4242))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BotMessageID)
	assert.Equal(t, int64(4242), *got.BotMessageID)
}
