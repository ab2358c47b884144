package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeStates struct {
	mu    sync.Mutex
	state rank.State
	saves int
}

func (f *fakeStates) Load(ctx context.Context) (rank.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.UserRanks == nil {
		return rank.EmptyState(), nil
	}
	return f.state, nil
}

func (f *fakeStates) Save(ctx context.Context, state rank.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.saves++
	return nil
}

type renameCall struct {
	id   rank.MemberID
	name string
}

type fakeDirectory struct {
	mu sync.Mutex

	members map[rank.MemberID]*member.Member
	order   []rank.MemberID

	renames    []renameCall
	renameErrs map[rank.MemberID]error

	channelExists bool
	messageExists bool
	posts         int
	edits         int
	lastText      string
	nextMessageID int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members:       make(map[rank.MemberID]*member.Member),
		renameErrs:    make(map[rank.MemberID]error),
		channelExists: true,
		nextMessageID: 100,
	}
}

func (f *fakeDirectory) addMember(id rank.MemberID, username, nick string) {
	f.members[id] = &member.Member{ID: id, Username: username, Nick: nick}
	f.order = append(f.order, id)
}

func (f *fakeDirectory) ListMembers(ctx context.Context) ([]member.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]member.Member, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.members[id])
	}
	return out, nil
}

func (f *fakeDirectory) Member(ctx context.Context, id rank.MemberID) (member.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return *m, nil
}

func (f *fakeDirectory) Rename(ctx context.Context, id rank.MemberID, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.renameErrs[id]; err != nil {
		return err
	}
	m, ok := f.members[id]
	if !ok {
		return member.ErrNotFound
	}
	m.Nick = displayName
	f.renames = append(f.renames, renameCall{id: id, name: displayName})
	return nil
}

func (f *fakeDirectory) FindListingChannel(ctx context.Context) (member.ChannelRef, error) {
	if !f.channelExists {
		return "", member.ErrChannelNotFound
	}
	return "chan-1", nil
}

func (f *fakeDirectory) CreateListingChannel(ctx context.Context) (member.ChannelRef, error) {
	f.channelExists = true
	return "chan-1", nil
}

func (f *fakeDirectory) PostListing(ctx context.Context, ch member.ChannelRef, text string) (rank.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	f.lastText = text
	f.messageExists = true
	f.nextMessageID++
	return rank.MessageRef(fmt.Sprintf("msg-%d", f.nextMessageID)), nil
}

func (f *fakeDirectory) EditListing(ctx context.Context, ch member.ChannelRef, msg rank.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.messageExists {
		return member.ErrMessageNotFound
	}
	f.edits++
	f.lastText = text
	return nil
}

func newTestService(t *testing.T, states *fakeStates, dir *fakeDirectory) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		States:    states,
		Directory: dir,
		Logger:    slog.Default(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func ranksOf(states *fakeStates) map[string]int {
	states.mu.Lock()
	defer states.mu.Unlock()
	return states.state.UserRanks
}

// ══════════════════════════════════════════════════════════════════════════════
// SET RANK
// ══════════════════════════════════════════════════════════════════════════════

func TestSetRankOnEmptyTable(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha")
	svc := newTestService(t, states, dir)

	res, err := svc.SetRank(context.Background(), "A", 1)
	require.NoError(t, err)

	assert.Equal(t, rank.Rank(0), res.OldRank)
	assert.Equal(t, rank.Rank(1), res.NewRank)
	assert.Equal(t, map[string]int{"A": 1}, ranksOf(states))
	assert.Contains(t, dir.lastText, "Rank 1: Alpha #1")
}

func TestSetRankIncomingMemberTakesSlot(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1, "B": 2, "C": 3}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.addMember("B", "bravo", "Bravo #2")
	dir.addMember("C", "charlie", "Charlie #3")
	svc := newTestService(t, states, dir)

	res, err := svc.SetRank(context.Background(), "C", 1)
	require.NoError(t, err)

	assert.Equal(t, rank.Rank(3), res.OldRank)
	assert.Equal(t, rank.Rank(1), res.NewRank)
	assert.Equal(t, 2, res.MembersShifted)
	assert.Equal(t, map[string]int{"C": 1, "A": 2, "B": 3}, ranksOf(states))

	// Every shifted member was renamed with its new rank.
	assert.Equal(t, "Charlie #1", dir.members["C"].Nick)
	assert.Equal(t, "Alpha #2", dir.members["A"].Nick)
	assert.Equal(t, "Bravo #3", dir.members["B"].Nick)
}

func TestSetRankBeyondTableSizeLandsOnTail(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1, "B": 2}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.addMember("B", "bravo", "Bravo #2")
	dir.addMember("C", "charlie", "Charlie")
	svc := newTestService(t, states, dir)

	res, err := svc.SetRank(context.Background(), "C", 99)
	require.NoError(t, err)

	assert.Equal(t, rank.Rank(3), res.NewRank)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, ranksOf(states))
}

func TestSetRankRejectsInvalidInput(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	svc := newTestService(t, states, dir)

	_, err := svc.SetRank(context.Background(), "A", 0)
	assert.ErrorIs(t, err, rank.ErrInvalidRank)

	_, err = svc.SetRank(context.Background(), "A", -3)
	assert.ErrorIs(t, err, rank.ErrInvalidRank)

	_, err = svc.SetRank(context.Background(), "", 1)
	assert.ErrorIs(t, err, rank.ErrInvalidMemberID)

	// Таблица не тронута: ни одного сохранения после загрузки.
	assert.Equal(t, 0, states.saves)
}

func TestSetRankSurvivesMissingMember(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1, "B": 2}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	// B покинул сервер: rename для него невозможен.
	svc := newTestService(t, states, dir)

	res, err := svc.SetRank(context.Background(), "A", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RenamesFailed)
	assert.Equal(t, map[string]int{"B": 1, "A": 2}, ranksOf(states))
}

func TestSetRankForbiddenRenameKeepsTableAuthoritative(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha")
	dir.renameErrs["A"] = member.ErrForbidden
	svc := newTestService(t, states, dir)

	res, err := svc.SetRank(context.Background(), "A", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RenamesFailed)
	assert.Equal(t, map[string]int{"A": 1}, ranksOf(states))
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOVE RANK
// ══════════════════════════════════════════════════════════════════════════════

func TestRemoveRankClosesGap(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1, "B": 2, "C": 3}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.addMember("B", "bravo", "Bravo #2")
	dir.addMember("C", "charlie", "Charlie #3")
	svc := newTestService(t, states, dir)

	res, err := svc.RemoveRank(context.Background(), "B")
	require.NoError(t, err)

	assert.Equal(t, rank.Rank(2), res.OldRank)
	assert.Equal(t, map[string]int{"A": 1, "C": 2}, ranksOf(states))

	// B теряет маркер, C получает новый ранг.
	assert.Equal(t, "Bravo", dir.members["B"].Nick)
	assert.Equal(t, "Charlie #2", dir.members["C"].Nick)
	assert.Contains(t, dir.lastText, "Rank 2: Charlie #2")
	assert.NotContains(t, dir.lastText, "Bravo")
}

func TestRemoveRankOfUnrankedMember(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	svc := newTestService(t, states, dir)

	_, err := svc.RemoveRank(context.Background(), "X")
	assert.ErrorIs(t, err, rank.ErrNotRanked)
	assert.Equal(t, 0, states.saves)
}

// ══════════════════════════════════════════════════════════════════════════════
// INVARIANT
// ══════════════════════════════════════════════════════════════════════════════

func TestTableStaysContiguousAcrossOperations(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	for i := 0; i < 6; i++ {
		id := rank.MemberID(fmt.Sprintf("m%d", i))
		dir.addMember(id, fmt.Sprintf("user%d", i), "")
	}
	svc := newTestService(t, states, dir)
	ctx := context.Background()

	ops := []func() error{
		func() error { _, err := svc.SetRank(ctx, "m0", 1); return err },
		func() error { _, err := svc.SetRank(ctx, "m1", 1); return err },
		func() error { _, err := svc.SetRank(ctx, "m2", 2); return err },
		func() error { _, err := svc.SetRank(ctx, "m3", 10); return err },
		func() error { _, err := svc.RemoveRank(ctx, "m1"); return err },
		func() error { _, err := svc.SetRank(ctx, "m4", 2); return err },
		func() error { _, err := svc.RemoveRank(ctx, "m0"); return err },
	}

	for i, op := range ops {
		require.NoError(t, op(), "op %d", i)

		seen := make(map[int]bool)
		snapshot := ranksOf(states)
		for _, r := range snapshot {
			assert.False(t, seen[r], "duplicate rank after op %d", i)
			assert.GreaterOrEqual(t, r, 1)
			assert.LessOrEqual(t, r, len(snapshot))
			seen[r] = true
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// ══════════════════════════════════════════════════════════════════════════════

func TestReconcileTableWins(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{
		"W": 1, "X": 2, "Y": 3, "E": 4,
	}}}
	dir := newFakeDirectory()
	dir.addMember("W", "whiskey", "Whiskey #1")
	dir.addMember("X", "xray", "Xray #2")
	dir.addMember("Y", "yankee", "Yankee #3")
	dir.addMember("E", "echo", "Echo #9") // имя врёт: таблица говорит 4
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Reconcile(context.Background()))

	assert.Equal(t, "Echo #4", dir.members["E"].Nick)
	assert.Len(t, dir.renames, 1)
}

func TestReconcileStripsMarkerFromUnrankedMember(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("Z", "zulu", "Zulu #3")
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Reconcile(context.Background()))

	assert.Equal(t, "Zulu", dir.members["Z"].Nick)
}

func TestReconcileAddsMissingMarker(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha")
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Reconcile(context.Background()))

	assert.Equal(t, "Alpha #1", dir.members["A"].Nick)
}

func TestReconcileDoesNotTouchTableOrListing(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #7")
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Reconcile(context.Background()))

	assert.Equal(t, 0, states.saves)
	assert.Equal(t, 0, dir.posts)
	assert.Equal(t, 0, dir.edits)
}

func TestReconcileMemberRewritesStaleName(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 2}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #9")
	svc := newTestService(t, states, dir)

	// Одиночная сверка: путь для событий member-join / member-update.
	m, err := dir.Member(context.Background(), "A")
	require.NoError(t, err)
	require.NoError(t, svc.ReconcileMember(context.Background(), m))

	assert.Equal(t, "Alpha #2", dir.members["A"].Nick)
	assert.Equal(t, 0, states.saves)
}

func TestReconcileMemberLeavesCorrectNameAlone(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	svc := newTestService(t, states, dir)

	m, err := dir.Member(context.Background(), "A")
	require.NoError(t, err)
	require.NoError(t, svc.ReconcileMember(context.Background(), m))

	assert.Empty(t, dir.renames)
}

func TestReconcileMemberStripsMarkerFromJoiner(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("N", "november", "November #4") // принёс маркер с другого сервера
	svc := newTestService(t, states, dir)

	m, err := dir.Member(context.Background(), "N")
	require.NoError(t, err)
	require.NoError(t, svc.ReconcileMember(context.Background(), m))

	assert.Equal(t, "November", dir.members["N"].Nick)
}

func TestReconcileMemberPropagatesRenameFailure(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha")
	dir.renameErrs["A"] = member.ErrForbidden
	svc := newTestService(t, states, dir)

	m, err := dir.Member(context.Background(), "A")
	require.NoError(t, err)

	err = svc.ReconcileMember(context.Background(), m)
	assert.ErrorIs(t, err, member.ErrForbidden)
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP
// ══════════════════════════════════════════════════════════════════════════════

func TestBootstrapSeedsFromNamesWhenTableEmpty(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #5")
	dir.addMember("B", "bravo", "Bravo")
	dir.addMember("C", "charlie", "Charlie #2")
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Bootstrap(context.Background()))

	// Распарсенные ранги (5 и 2) нормализуются в плотную последовательность.
	assert.Equal(t, map[string]int{"C": 1, "A": 2}, ranksOf(states))
	assert.Equal(t, "Charlie #1", dir.members["C"].Nick)
	assert.Equal(t, "Alpha #2", dir.members["A"].Nick)
	assert.Contains(t, dir.lastText, "Rank 1: Charlie #1")
}

func TestSeedFromNamesYieldsToConcurrentMutation(t *testing.T) {
	states := &fakeStates{}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha")
	dir.addMember("B", "bravo", "Bravo #5")
	svc := newTestService(t, states, dir)

	// Команда успела выполниться между проверкой пустоты в Bootstrap
	// и самим посевом: таблица уже авторитетна.
	_, err := svc.SetRank(context.Background(), "A", 1)
	require.NoError(t, err)

	require.NoError(t, svc.seedFromNames(context.Background()))

	assert.Equal(t, map[string]int{"A": 1}, ranksOf(states))
}

func TestBootstrapEnforcesTableWhenNotEmpty(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #3")
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.Bootstrap(context.Background()))

	assert.Equal(t, "Alpha #1", dir.members["A"].Nick)
	assert.Equal(t, map[string]int{"A": 1}, ranksOf(states))
}

// ══════════════════════════════════════════════════════════════════════════════
// LISTING
// ══════════════════════════════════════════════════════════════════════════════

func TestListingEditedInPlace(t *testing.T) {
	states := &fakeStates{state: rank.State{
		UserRanks:     map[string]int{"A": 1},
		RankMessageID: "msg-1",
	}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.messageExists = true
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.RefreshListing(context.Background()))

	assert.Equal(t, 1, dir.edits)
	assert.Equal(t, 0, dir.posts)
}

func TestListingRepostedWhenMessageGone(t *testing.T) {
	states := &fakeStates{state: rank.State{
		UserRanks:     map[string]int{"A": 1},
		RankMessageID: "msg-1",
	}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.messageExists = false
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.RefreshListing(context.Background()))

	assert.Equal(t, 1, dir.posts)
	states.mu.Lock()
	assert.NotEqual(t, rank.MessageRef("msg-1"), states.state.RankMessageID)
	assert.False(t, states.state.RankMessageID.IsZero())
	states.mu.Unlock()
}

func TestListingChannelCreatedWhenMissing(t *testing.T) {
	states := &fakeStates{state: rank.State{UserRanks: map[string]int{"A": 1}}}
	dir := newFakeDirectory()
	dir.addMember("A", "alpha", "Alpha #1")
	dir.channelExists = false
	svc := newTestService(t, states, dir)

	require.NoError(t, svc.RefreshListing(context.Background()))

	assert.True(t, dir.channelExists)
	assert.Equal(t, 1, dir.posts)
}

func TestRenderListing(t *testing.T) {
	assert.Equal(t, "```\nNo ranks available.\n```", RenderListing(nil))

	text := RenderListing([]ListingRow{
		{Rank: 1, Member: "A", Name: "Alpha #1"},
		{Rank: 2, Member: "B"},
	})
	assert.Contains(t, text, "Rank 1: Alpha #1")
	assert.Contains(t, text, "Rank 2: member B is no longer on the server")
}
