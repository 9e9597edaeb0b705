package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activitychat/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migrations are idempotent")
	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, HashedPassword: "x"}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), u))
	return u
}

func createEvent(t *testing.T, db *sql.DB, organizerID, name string) (*domain.Event, *domain.Chat) {
	t.Helper()
	e := &domain.Event{
		OrganizerID:  organizerID,
		Name:         name,
		ActivityType: "hiking",
		PriceRange:   "free",
		TimeSlot:     "morning",
		EventDate:    "2026-05-01",
		Location:     "Trailhead",
	}
	c := &domain.Chat{}
	opening := &domain.Message{UserID: organizerID, Content: "Ann created the group", Type: domain.MessageTypeSystem}
	require.NoError(t, NewEventRepo(db).Create(context.Background(), e, c, opening))
	return e, c
}

func TestUserRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepo(db)

	u := createUser(t, db, "a@example.com")
	assert.NotEmpty(t, u.ID)

	got, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.Create(ctx, &domain.User{Email: "a@example.com", HashedPassword: "y"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestProfileRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepo(db)
	u := createUser(t, db, "p@example.com")

	_, err := repo.Get(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bio := "likes hills"
	require.NoError(t, repo.Upsert(ctx, &domain.Profile{UserID: u.ID, Name: "Pat", Bio: &bio, Interests: []string{"hiking"}}))
	require.NoError(t, repo.Upsert(ctx, &domain.Profile{UserID: u.ID, Name: "Patricia"}))

	p, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patricia", p.Name)
	assert.Nil(t, p.Bio)
	assert.Equal(t, []string{}, p.Interests)

	list, err := repo.ListByIDs(ctx, []string{u.ID, "nobody"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, u.ID, list[0].UserID)
}

func TestEventCreateWritesChatMembershipAndAttendance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	org := createUser(t, db, "org@example.com")

	e, c := createEvent(t, db, org.ID, "Sunrise hike")
	assert.Equal(t, domain.StatusPending, e.Status)
	assert.Equal(t, e.ID, c.EventID)

	chats := NewChatRepo(db)
	byEvent, err := chats.GetByEventID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byEvent.ID)

	member, err := chats.IsParticipant(ctx, c.ID, org.ID)
	require.NoError(t, err)
	assert.True(t, member)

	msgs, err := NewMessageRepo(db).ListForChat(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageTypeSystem, msgs[0].Type)

	att, err := NewAttendeeRepo(db).Get(ctx, e.ID, org.ID)
	require.NoError(t, err)
	assert.False(t, att.Completed)
}

func TestEventStatusAndOpenList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewEventRepo(db)
	org := createUser(t, db, "org@example.com")

	e1, _ := createEvent(t, db, org.ID, "one")
	e2, _ := createEvent(t, db, org.ID, "two")

	require.NoError(t, repo.SetStatus(ctx, e1.ID, domain.StatusCompleted))
	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", domain.StatusCompleted), domain.ErrNotFound)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, e2.ID, open[0].ID)

	both, err := repo.ListByIDs(ctx, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestChatParticipantsAndThreadRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	chats := NewChatRepo(db)
	msgs := NewMessageRepo(db)

	org := createUser(t, db, "org@example.com")
	guest := createUser(t, db, "guest@example.com")
	e1, c1 := createEvent(t, db, org.ID, "Picnic")
	_, c2 := createEvent(t, db, org.ID, "Board games")

	added, err := chats.AddParticipant(ctx, &domain.ChatParticipant{ChatID: c1.ID, UserID: guest.ID})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = chats.AddParticipant(ctx, &domain.ChatParticipant{ChatID: c1.ID, UserID: guest.ID})
	require.NoError(t, err)
	assert.False(t, added)

	n, err := chats.CountParticipants(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	base := time.Now().UTC().Add(time.Minute).Truncate(time.Microsecond)
	require.NoError(t, msgs.Create(ctx, &domain.Message{ChatID: c1.ID, UserID: guest.ID, Content: "hi", CreatedAt: base}))
	require.NoError(t, msgs.Create(ctx, &domain.Message{ChatID: c1.ID, UserID: org.ID, Content: "welcome", CreatedAt: base.Add(time.Second)}))

	recs, err := chats.ListThreadRecords(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, c1.ID, recs[0].ChatID)
	require.Len(t, recs[0].Events, 1)
	assert.Equal(t, e1.ID, recs[0].Events[0].ID)
	assert.Equal(t, "Picnic", recs[0].Events[0].Name)
	assert.Equal(t, domain.StatusPending, recs[0].Events[0].Status)
	require.Len(t, recs[0].Messages, 1)
	assert.Equal(t, "welcome", recs[0].Messages[0].Content)
	assert.True(t, recs[0].Messages[0].CreatedAt.Equal(base.Add(time.Second)))

	recs, err = chats.ListThreadRecords(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	ids := []string{recs[0].ChatID, recs[1].ChatID}
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, ids)
}

func TestAttendeeAndRatings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	attendees := NewAttendeeRepo(db)
	ratings := NewRatingRepo(db)

	org := createUser(t, db, "org@example.com")
	guest := createUser(t, db, "guest@example.com")
	e, _ := createEvent(t, db, org.ID, "Climb")

	require.NoError(t, attendees.Upsert(ctx, &domain.EventAttendee{EventID: e.ID, UserID: guest.ID}))
	require.NoError(t, attendees.Upsert(ctx, &domain.EventAttendee{EventID: e.ID, UserID: guest.ID}))
	require.NoError(t, attendees.SetCompleted(ctx, e.ID, guest.ID, true))
	a, err := attendees.Get(ctx, e.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, a.Completed)
	assert.ErrorIs(t, attendees.SetCompleted(ctx, e.ID, "nobody", true), domain.ErrNotFound)

	r := &domain.OrganizerRating{EventID: e.ID, OrganizerID: org.ID, RaterID: guest.ID, CommunicationRating: 3, SafetyRating: 4, OverallRating: 5}
	require.NoError(t, ratings.Upsert(ctx, r))
	r2 := &domain.OrganizerRating{EventID: e.ID, OrganizerID: org.ID, RaterID: guest.ID, CommunicationRating: 5, SafetyRating: 5, OverallRating: 5}
	require.NoError(t, ratings.Upsert(ctx, r2))

	list, err := ratings.ListForOrganizer(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].CommunicationRating)
}

func TestPostsAndLikes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	posts := NewPostRepo(db)
	u := createUser(t, db, "u@example.com")
	v := createUser(t, db, "v@example.com")

	base := time.Now().UTC().Truncate(time.Microsecond)
	older := &domain.Post{UserID: u.ID, Caption: "old", MediaURL: "/uploads/a.jpg", CreatedAt: base}
	newer := &domain.Post{UserID: u.ID, Caption: "new", MediaURL: "/uploads/b.jpg", CreatedAt: base.Add(time.Second)}
	require.NoError(t, posts.Create(ctx, older))
	require.NoError(t, posts.Create(ctx, newer))

	recent, err := posts.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, newer.ID, recent[0].ID)

	added, err := posts.AddLike(ctx, &domain.PostLike{PostID: newer.ID, UserID: v.ID})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = posts.AddLike(ctx, &domain.PostLike{PostID: newer.ID, UserID: v.ID})
	require.NoError(t, err)
	assert.False(t, added)

	likes, err := posts.ListLikes(ctx, []string{newer.ID, older.ID})
	require.NoError(t, err)
	assert.Len(t, likes, 1)

	removed, err := posts.RemoveLike(ctx, newer.ID, v.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, posts.Delete(ctx, older.ID))
	_, err = posts.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
