// internal/notifications/decision/engine_test.go
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/preferences"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

type fakeRepo struct {
	mu      sync.Mutex
	rows    []models.Notification
	failFor map[string]error
}

func (f *fakeRepo) Add(_ context.Context, userID string, in models.NewNotification) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[userID]; err != nil {
		return nil, apperrors.NewNotificationInsertFailedError(userID, err)
	}
	in = in.Normalize()
	n := models.Notification{
		ID:        fmt.Sprintf("n%d", len(f.rows)+1),
		UserID:    userID,
		Type:      in.Type,
		Category:  in.Category,
		Priority:  in.Priority,
		Title:     in.Title,
		Message:   in.Message,
		Metadata:  in.Metadata,
		CreatedAt: time.Now(),
	}
	f.rows = append(f.rows, n)
	return &n, nil
}

func (f *fakeRepo) forUser(userID string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeRepo) unreadCount(userID string) int {
	count := 0
	for _, n := range f.forUser(userID) {
		if !n.Read {
			count++
		}
	}
	return count
}

type fakePrefs struct {
	disabled map[string][]models.Category
	dnd      map[string]bool
}

func (f *fakePrefs) IsNotificationAllowed(_ context.Context, userID string, c models.Category) bool {
	if c == models.CategorySystem {
		return true
	}
	for _, off := range f.disabled[userID] {
		if off == c {
			return false
		}
	}
	return true
}

func (f *fakePrefs) IsInDoNotDisturb(_ context.Context, userID string) bool {
	return f.dnd[userID]
}

// windowPrefs evaluates a real DND window against a fixed time of day.
type windowPrefs struct {
	now, start, end string
}

func (w windowPrefs) IsNotificationAllowed(context.Context, string, models.Category) bool {
	return true
}

func (w windowPrefs) IsInDoNotDisturb(context.Context, string) bool {
	return preferences.InDoNotDisturbWindow(w.now, w.start, w.end)
}

type fakeLocal struct {
	mu       sync.Mutex
	newsOff  map[string]bool
	counts   map[string]int64
	countErr error
}

func (f *fakeLocal) LegacyEnabled(_ context.Context, userID string, kind localstore.LegacyKind) bool {
	return !(kind == localstore.LegacyNews && f.newsOff[userID])
}

func (f *fakeLocal) IncrementMatchCount(_ context.Context, userID, leagueID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[leagueID+":"+userID]++
	return f.counts[leagueID+":"+userID], nil
}

type fakeDirectory struct {
	users   []models.User
	league  *models.League
	matches []models.Match
	err     error
}

func (f *fakeDirectory) ListUsers(context.Context) ([]models.User, error) {
	return f.users, f.err
}

func (f *fakeDirectory) GetLeague(context.Context, string) (*models.League, error) {
	if f.league == nil {
		return nil, errors.New("league not found")
	}
	return f.league, f.err
}

func (f *fakeDirectory) CompletedMatches(context.Context, string) ([]models.Match, error) {
	return f.matches, f.err
}

type fixture struct {
	engine *Engine
	repo   *fakeRepo
	prefs  *fakePrefs
	local  *fakeLocal
	dir    *fakeDirectory
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  &fakeRepo{},
		prefs: &fakePrefs{disabled: map[string][]models.Category{}, dnd: map[string]bool{}},
		local: &fakeLocal{newsOff: map[string]bool{}},
		dir:   &fakeDirectory{},
	}
	f.engine = NewEngine(f.repo, f.prefs, f.local, f.dir, nil, Config{}, logger.NewTestLogger(t))
	f.engine.SetSelector(First)
	return f
}

func score(n int) *int { return &n }

func completed(home, away string, hs, as int) models.Match {
	return models.Match{
		ID:         "m1",
		LeagueID:   "l1",
		HomeUserID: home,
		AwayUserID: away,
		HomeScore:  score(hs),
		AwayScore:  score(as),
		Status:     models.MatchStatusCompleted,
	}
}

// ==========================
// Match events
// ==========================

func TestMatch_UninvolvedUserNeverNotified(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	for _, m := range []models.Match{
		completed("A", "B", 3, 1),
		completed("A", "B", 0, 0),
		completed("B", "A", 1, 4),
	} {
		n, err := f.engine.Handle(ctx, "C", models.MatchCompleted{Match: m})
		require.NoError(t, err)
		assert.Nil(t, n)
	}
	assert.Empty(t, f.repo.rows)
}

func TestMatch_CategoryDisabled(t *testing.T) {
	f := setupEngine(t)
	f.prefs.disabled["A"] = []models.Category{models.CategoryMatch}

	n, err := f.engine.Handle(context.Background(), "A", models.MatchCompleted{Match: completed("A", "B", 3, 1)})
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, f.repo.forUser("A"))
}

func TestMatch_ExactlyOneRecord(t *testing.T) {
	f := setupEngine(t)

	n, err := f.engine.Handle(context.Background(), "A", models.MatchCompleted{Match: completed("A", "B", 2, 0)})
	require.NoError(t, err)
	require.NotNil(t, n)

	rows := f.repo.forUser("A")
	require.Len(t, rows, 1)
	assert.Equal(t, models.CategoryMatch, rows[0].Category)
	assert.Equal(t, models.TypeMatch, rows[0].Type)
	assert.Equal(t, "win", rows[0].Metadata["result"])
}

func TestMatch_OutcomeTitles(t *testing.T) {
	tests := []struct {
		name   string
		match  models.Match
		user   string
		title  string
		banked []string
	}{
		{"home win", completed("U", "V", 3, 1), "U", TitleVictory, WinMessages},
		{"away loss", completed("U", "V", 3, 1), "V", TitleDefeat, LossMessages},
		{"away win", completed("V", "U", 0, 2), "U", TitleVictory, WinMessages},
		{"draw home", completed("U", "V", 1, 1), "U", TitleDraw, DrawMessages},
		{"draw away", completed("U", "V", 1, 1), "V", TitleDraw, DrawMessages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupEngine(t)
			f.engine.SetSelector(NewRandomSelector(42))

			n, err := f.engine.Handle(context.Background(), tt.user, models.MatchCompleted{Match: tt.match})
			require.NoError(t, err)
			require.NotNil(t, n)
			assert.Equal(t, tt.title, n.Title)
			assert.Contains(t, tt.banked, n.Message)
		})
	}
}

func TestMatch_SkipsIncompleteEvents(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	pending := completed("A", "B", 1, 0)
	pending.Status = "scheduled"
	n, err := f.engine.Handle(ctx, "A", models.MatchCompleted{Match: pending})
	require.NoError(t, err)
	assert.Nil(t, n)

	noScore := completed("A", "B", 1, 0)
	noScore.AwayScore = nil
	n, err = f.engine.Handle(ctx, "A", models.MatchCompleted{Match: noScore})
	require.NoError(t, err)
	assert.Nil(t, n)

	assert.Empty(t, f.repo.rows)
}

func TestMatch_InsertFailureSurfaces(t *testing.T) {
	f := setupEngine(t)
	f.repo.failFor = map[string]error{"A": errors.New("connection reset")}

	n, err := f.engine.Handle(context.Background(), "A", models.MatchCompleted{Match: completed("A", "B", 1, 0)})
	assert.Nil(t, n)
	code, ok := apperrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotificationInsertFailed, code)
}

func TestMatch_DoNotDisturbSuppresses(t *testing.T) {
	f := setupEngine(t)
	f.prefs.dnd["A"] = true

	n, err := f.engine.Handle(context.Background(), "A", models.MatchCompleted{Match: completed("A", "B", 1, 0)})
	require.NoError(t, err)
	assert.Nil(t, n)
}

// ==========================
// League events
// ==========================

func TestLeague_StartedAndFinished(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	league := models.League{ID: "l1", Name: "Sunday League", ParticipantIDs: []string{"A", "B"}}

	n, err := f.engine.Handle(ctx, "A", models.LeagueStarted{League: league})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, TitleLeagueStarted, n.Title)
	assert.Equal(t, models.CategoryLeague, n.Category)
	assert.Contains(t, n.Message, "Sunday League")
	assert.NotContains(t, n.Message, "{{")

	league.Status = models.LeagueStatusFinished
	n, err = f.engine.Handle(ctx, "B", models.LeagueFinished{League: league})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, TitleLeagueFinished, n.Title)

	n, err = f.engine.Handle(ctx, "C", models.LeagueStarted{League: league})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestLeague_GenericChangesNeverNotify(t *testing.T) {
	f := setupEngine(t)

	n, err := f.engine.Handle(context.Background(), "A", models.GenericRowChanged{
		Table:     "leagues",
		EventType: models.ChangeUpdate,
		New:       map[string]interface{}{"participant_ids": []interface{}{"A"}},
	})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestLeague_DoNotDisturbWindow(t *testing.T) {
	league := models.League{ID: "l1", Name: "Cup", ParticipantIDs: []string{"A"}}

	tests := []struct {
		now     string
		created bool
	}{
		{"13:00:00", false},
		{"12:00:00", false},
		{"14:00:00", true},
		{"11:59:59", true},
	}

	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			repo := &fakeRepo{}
			e := NewEngine(repo, windowPrefs{now: tt.now, start: "12:00:00", end: "14:00:00"},
				&fakeLocal{}, &fakeDirectory{}, nil, Config{}, logger.NewNoOpLogger())

			n, err := e.Handle(context.Background(), "A", models.LeagueStarted{League: league})
			require.NoError(t, err)
			assert.Equal(t, tt.created, n != nil)
			assert.Len(t, repo.rows, map[bool]int{true: 1, false: 0}[tt.created])
		})
	}
}

// ==========================
// Table position
// ==========================

func TestComputeStandings(t *testing.T) {
	matches := []models.Match{
		completed("A", "B", 2, 0),
		completed("C", "A", 1, 1),
		completed("B", "C", 3, 0),
		{HomeUserID: "A", AwayUserID: "C", Status: models.MatchStatusCompleted},
	}

	standings := ComputeStandings([]string{"A", "B", "C"}, matches)
	require.Len(t, standings, 3)
	assert.Equal(t, Standing{UserID: "A", Points: 4, GoalDifference: 2, GoalsFor: 3}, standings[0])
	assert.Equal(t, "B", standings[1].UserID)
	assert.Equal(t, "C", standings[2].UserID)

	assert.Equal(t, 1, RankOf(standings, "A"))
	assert.Equal(t, 3, RankOf(standings, "C"))
	assert.Equal(t, 0, RankOf(standings, "Z"))
}

func TestTablePositionMessage(t *testing.T) {
	assert.Equal(t, "You are TOP of the league! 🥇 Everyone is chasing you!", TablePositionMessage(1, 4))
	assert.Equal(t, "Currently bottom of the pile... 📉 Time to wake up!", TablePositionMessage(4, 4))
	assert.Equal(t, "You are currently sitting at #2 in the tables. 📊", TablePositionMessage(2, 4))
}

func TestMatch_TablePositionEveryThirdMatch(t *testing.T) {
	f := setupEngine(t)
	f.dir.league = &models.League{ID: "l1", ParticipantIDs: []string{"A", "B", "C"}}
	f.dir.matches = []models.Match{
		completed("A", "B", 2, 0),
		completed("A", "C", 2, 0),
		completed("B", "C", 1, 0),
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.engine.Handle(ctx, "A", models.MatchCompleted{Match: completed("A", "B", 2, 0)})
		require.NoError(t, err)
	}

	rows := f.repo.forUser("A")
	require.Len(t, rows, 4)
	last := rows[3]
	assert.Equal(t, TitleLeagueUpdate, last.Title)
	assert.Equal(t, TablePositionMessage(1, 3), last.Message)
	assert.Equal(t, 1, last.Metadata["rank"])
}

func TestMatch_TablePositionFailureIsIsolated(t *testing.T) {
	f := setupEngine(t)
	f.local.countErr = errors.New("redis down")

	n, err := f.engine.Handle(context.Background(), "A", models.MatchCompleted{Match: completed("A", "B", 2, 0)})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Len(t, f.repo.forUser("A"), 1)
}

// ==========================
// End-to-end draw scenario
// ==========================

func TestEndToEnd_DrawNotifiesBothPlayers(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	match := completed("A", "B", 2, 2)

	beforeA, beforeB := f.repo.unreadCount("A"), f.repo.unreadCount("B")

	// each player's session handles the same change independently
	for _, user := range []string{"A", "B"} {
		_, err := f.engine.Handle(ctx, user, models.MatchCompleted{Match: match})
		require.NoError(t, err)
	}

	require.Len(t, f.repo.rows, 2)
	for _, n := range f.repo.rows {
		assert.Equal(t, models.CategoryMatch, n.Category)
		assert.Equal(t, TitleDraw, n.Title)
	}
	assert.Equal(t, beforeA+1, f.repo.unreadCount("A"))
	assert.Equal(t, beforeB+1, f.repo.unreadCount("B"))
}

// ==========================
// Broadcast
// ==========================

func fiveUsers() []models.User {
	users := make([]models.User, 5)
	for i := range users {
		users[i] = models.User{ID: fmt.Sprintf("u%d", i+1)}
	}
	return users
}

func TestBroadcast_PartialFailureContinues(t *testing.T) {
	f := setupEngine(t)
	f.dir.users = fiveUsers()
	f.repo.failFor = map[string]error{"u3": errors.New("insert timeout")}

	result, err := f.engine.SendAppUpdateNotification(context.Background(), "")
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 4, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"u3"}, result.FailedUsers)
	assert.Len(t, f.repo.rows, 4)

	var batch *apperrors.BatchError
	require.True(t, errors.As(err, &batch))
	assert.Contains(t, batch.FailedItems(), "u3")
	code, _ := apperrors.CodeOf(err)
	assert.Equal(t, apperrors.ErrCodeBroadcastPartialFailure, code)

	for _, n := range f.repo.rows {
		assert.Equal(t, models.CategoryAnnouncement, n.Category)
		assert.Equal(t, TitleAppUpdate, n.Title)
		assert.Equal(t, AppUpdateMessages[0], n.Message)
	}
}

func TestBroadcast_SkipsIneligibleUsers(t *testing.T) {
	f := setupEngine(t)
	f.dir.users = fiveUsers()
	f.local.newsOff["u1"] = true
	f.prefs.disabled["u2"] = []models.Category{models.CategoryAnnouncement}
	f.prefs.dnd["u4"] = true

	result, err := f.engine.SendSystemAnnouncement(context.Background(), "  Finals on Sunday! 🏆 ")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 3, result.Skipped)
	assert.Zero(t, result.Failed)

	rows := f.repo.forUser("u3")
	require.Len(t, rows, 1)
	assert.Equal(t, "Finals on Sunday! 🏆", rows[0].Message)
	assert.Equal(t, models.PriorityHigh, rows[0].Priority)
	assert.Equal(t, models.TypeNews, rows[0].Type)
}

func TestBroadcast_Validation(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.SendSystemAnnouncement(context.Background(), "   ")
	code, _ := apperrors.CodeOf(err)
	assert.Equal(t, apperrors.ErrCodeInvalidBroadcast, code)

	_, err = f.engine.BroadcastNews(context.Background(), NewsKind("gossip"), "")
	code, _ = apperrors.CodeOf(err)
	assert.Equal(t, apperrors.ErrCodeInvalidBroadcast, code)

	f.dir.err = errors.New("users table unavailable")
	_, err = f.engine.SendAppUpdateNotification(context.Background(), "")
	assert.ErrorContains(t, err, "list users")
}

func TestBroadcast_MessageLengthCap(t *testing.T) {
	f := setupEngine(t)
	f.dir.users = fiveUsers()
	ctx := context.Background()

	tooLong := strings.Repeat("a", MaxNewsMessageLength+1)
	res, err := f.engine.SendSystemAnnouncement(ctx, tooLong)
	code, _ := apperrors.CodeOf(err)
	assert.Equal(t, apperrors.ErrCodeInvalidBroadcast, code)
	assert.Nil(t, res)
	assert.Empty(t, f.repo.rows, "nothing is written for an oversized message")

	_, err = f.engine.SendNewsToUser(ctx, "u1", NewsAppUpdate, tooLong)
	code, _ = apperrors.CodeOf(err)
	assert.Equal(t, apperrors.ErrCodeInvalidBroadcast, code)

	// the cap counts characters, not bytes
	atLimit := strings.Repeat("⚽", MaxNewsMessageLength)
	res, err = f.engine.SendSystemAnnouncement(ctx, atLimit)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Delivered)
}

func TestSendNewsToUser(t *testing.T) {
	f := setupEngine(t)

	n, err := f.engine.SendNewsToUser(context.Background(), "u1", NewsAnnouncement, "")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, AnnouncementMessages[0], n.Message)

	f.local.newsOff["u2"] = true
	n, err = f.engine.SendNewsToUser(context.Background(), "u2", NewsAnnouncement, "hello")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestSendTestNotification_BypassesGates(t *testing.T) {
	f := setupEngine(t)
	f.prefs.dnd["A"] = true

	n, err := f.engine.SendTestNotification(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, models.CategorySystem, n.Category)
	assert.Equal(t, TitleTest, n.Title)
}

// ==========================
// Message banks
// ==========================

func TestMessageBanks(t *testing.T) {
	banks := map[string][]string{
		"win":             WinMessages,
		"loss":            LossMessages,
		"draw":            DrawMessages,
		"league started":  LeagueStartedMessages,
		"league finished": LeagueFinishedMessages,
		"app update":      AppUpdateMessages,
		"announcement":    AnnouncementMessages,
	}
	for name, bank := range banks {
		assert.GreaterOrEqual(t, len(bank), 5, name)
		for _, msg := range bank {
			assert.NotEmpty(t, strings.TrimSpace(msg), name)
		}
	}
	for _, tmpl := range append(append([]string{}, LeagueStartedMessages...), LeagueFinishedMessages...) {
		assert.Contains(t, tmpl, "{{leagueName}}")
	}
}

func TestRandomSelector_StaysInBank(t *testing.T) {
	s := NewRandomSelector(7)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		msg := s.Pick(WinMessages)
		assert.Contains(t, WinMessages, msg)
		seen[msg] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.Equal(t, "", s.Pick(nil))
}
