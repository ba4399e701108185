package state

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/sailsync/internal/dependencies/mocks"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage/memory"
	"github.com/mcoot/sailsync/internal/testutil"
)

type CacheSuite struct {
	suite.Suite
	backing *memory.Storage
	store   *testutil.RecordingStore
	clock   *mocks.MockClock
	cache   *Cache
	ctx     context.Context
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.backing = memory.New()
	s.store = testutil.NewRecordingStore(s.backing)
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	throttler := NewThrottler(5*time.Second, s.clock)
	s.cache = NewCache(s.store, throttler, s.clock, time.Second, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *CacheSuite) join(id model.PlayerID) *model.Player {
	p, _, err := s.cache.GetOrCreate(s.ctx, id, model.JoinFields{})
	s.Require().NoError(err)
	return p
}

func (s *CacheSuite) stored(id model.PlayerID) *model.Player {
	p, err := s.backing.GetPlayer(s.ctx, id)
	s.Require().NoError(err)
	return p
}

func vec(x, y, z float64) *model.Vec3 {
	return &model.Vec3{X: x, Y: y, Z: z}
}

// GetOrCreate tests

func (s *CacheSuite) TestGetOrCreateNewPlayerUsesDefaults() {
	p, created, err := s.cache.GetOrCreate(s.ctx, "guest_abcdef", model.JoinFields{})
	s.Require().NoError(err)

	s.True(created)
	s.Equal("Sailor abcd", p.Name)
	s.Equal(model.DefaultPlayerColor, p.Color)
	s.Equal(model.ModeBoat, p.Mode)
	s.Equal(model.Vec3{}, p.Position)
	s.True(p.Active)
	s.Equal([]model.PlayerID{"guest_abcdef"}, s.store.Creates())
	s.True(s.stored("guest_abcdef").Active)
}

func (s *CacheSuite) TestGetOrCreateNewPlayerTakesJoinFields() {
	name := "Ahab"
	color := model.Color{R: 1}
	mode := model.ModeCharacter
	p, _, err := s.cache.GetOrCreate(s.ctx, "p1", model.JoinFields{
		Name: &name, Color: &color, Position: vec(3, 0, 4), Mode: &mode,
	})
	s.Require().NoError(err)

	s.Equal("Ahab", p.Name)
	s.Equal(color, p.Color)
	s.Equal(model.Vec3{X: 3, Z: 4}, p.Position)
	s.Equal(model.ModeCharacter, p.Mode)
}

func (s *CacheSuite) TestGetOrCreateExistingMergesOnlyWorldState() {
	existing := model.NewPlayer("firebase_uid42", s.clock.Now())
	existing.Name = "Ishmael"
	existing.FishCount = 7
	existing.Active = false
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, existing))

	name := "Impostor"
	p, created, err := s.cache.GetOrCreate(s.ctx, "firebase_uid42", model.JoinFields{
		Name: &name, Position: vec(1, 2, 3),
	})
	s.Require().NoError(err)

	s.False(created)
	s.Equal("Ishmael", p.Name)
	s.Equal(int64(7), p.FishCount)
	s.Equal(model.Vec3{X: 1, Y: 2, Z: 3}, p.Position)
	s.True(p.Active)
	s.Empty(s.store.Creates())
	s.Equal(1, s.store.UpdateCount("firebase_uid42"))
	s.True(s.stored("firebase_uid42").Active)
}

func (s *CacheSuite) TestGetOrCreateWriteFailureKeepsPlayer() {
	s.store.SetFailWrites(true)

	p, _, err := s.cache.GetOrCreate(s.ctx, "p1", model.JoinFields{})

	s.ErrorIs(err, model.ErrPersistFailed)
	s.Require().NotNil(p)
	s.True(p.Active)
	cached, err := s.cache.Get("p1")
	s.Require().NoError(err)
	s.True(cached.Active)
}

func (s *CacheSuite) TestCreateRetriedAfterStoreRecovers() {
	s.store.SetFailWrites(true)
	_, _, err := s.cache.GetOrCreate(s.ctx, "p1", model.JoinFields{})
	s.Require().ErrorIs(err, model.ErrPersistFailed)
	s.store.SetFailWrites(false)

	p, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)

	s.Require().NoError(err)
	s.Equal(int64(1), p.FishCount)
	s.Equal([]model.PlayerID{"p1", "p1"}, s.store.Creates())
	stored := s.stored("p1")
	s.Equal(int64(1), stored.FishCount)
	s.True(stored.Active)

	// Once created, later writes patch the record
	_, err = s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)
	s.Require().NoError(err)
	s.Len(s.store.Creates(), 2)
	s.Equal(int64(2), s.stored("p1").FishCount)
}

func (s *CacheSuite) TestMarkInactiveCreatesMissingRecord() {
	s.store.SetFailWrites(true)
	s.cache.GetOrCreate(s.ctx, "p1", model.JoinFields{})
	s.store.SetFailWrites(false)

	_, err := s.cache.MarkInactive(s.ctx, "p1")

	s.Require().NoError(err)
	s.False(s.stored("p1").Active)
}

func (s *CacheSuite) storedSailor(id model.PlayerID) {
	p := model.NewPlayer(id, s.clock.Now())
	p.Name = "Ishmael"
	p.FishCount = 50
	p.Money = 900
	p.Active = false
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, p))
}

func (s *CacheSuite) TestReadOutageAtJoinKeepsStoredCounters() {
	s.storedSailor("firebase_uid42")
	s.store.SetFailReads(true)

	p, created, err := s.cache.GetOrCreate(s.ctx, "firebase_uid42", model.JoinFields{Position: vec(1, 0, 0)})

	s.ErrorIs(err, model.ErrPersistFailed)
	s.True(created)
	s.True(p.Active)
	s.Equal(0, s.store.UpdateCount("firebase_uid42"))
	s.Empty(s.store.Creates())

	s.store.SetFailReads(false)
	p, err = s.cache.IncrementCounter(s.ctx, "firebase_uid42", model.CounterFish, 1)

	s.Require().NoError(err)
	s.Equal(int64(51), p.FishCount)
	s.Equal(int64(900), p.Money)
	s.Equal("Ishmael", p.Name)
	stored := s.stored("firebase_uid42")
	s.Equal(int64(51), stored.FishCount)
	s.Equal(int64(900), stored.Money)
	s.Equal("Ishmael", stored.Name)
	s.Equal(1.0, stored.Position.X)
	s.True(stored.Active)
}

func (s *CacheSuite) TestCountersGainedDuringOutageAreAdded() {
	s.storedSailor("firebase_uid42")
	s.store.SetFailReads(true)
	s.store.SetFailWrites(true)
	s.cache.GetOrCreate(s.ctx, "firebase_uid42", model.JoinFields{})

	_, err := s.cache.IncrementCounter(s.ctx, "firebase_uid42", model.CounterMoney, 25)
	s.ErrorIs(err, model.ErrPersistFailed)

	s.store.SetFailReads(false)
	s.store.SetFailWrites(false)
	p, err := s.cache.IncrementCounter(s.ctx, "firebase_uid42", model.CounterFish, 1)

	s.Require().NoError(err)
	s.Equal(int64(51), p.FishCount)
	s.Equal(int64(925), p.Money)
	stored := s.stored("firebase_uid42")
	s.Equal(int64(51), stored.FishCount)
	s.Equal(int64(925), stored.Money)
}

func (s *CacheSuite) TestUnconfirmedPlayerNeverWritesFullRecord() {
	s.storedSailor("firebase_uid42")
	s.store.SetFailReads(true)
	s.cache.GetOrCreate(s.ctx, "firebase_uid42", model.JoinFields{})

	_, err := s.cache.IncrementCounter(s.ctx, "firebase_uid42", model.CounterFish, 1)
	s.ErrorIs(err, model.ErrPersistFailed)

	s.clock.Advance(10 * time.Second)
	_, err = s.cache.ApplyUpdate(s.ctx, "firebase_uid42", model.PlayerUpdate{Position: vec(7, 0, 0)})
	s.Require().NoError(err)

	updates := s.store.Updates()
	s.Require().Len(updates, 1)
	s.Nil(updates[0].Patch.FishCount)
	s.Nil(updates[0].Patch.Money)
	stored := s.stored("firebase_uid42")
	s.Equal(int64(50), stored.FishCount)
	s.Equal(int64(900), stored.Money)
	s.Equal(7.0, stored.Position.X)
}

func (s *CacheSuite) TestRenameDuringOutageSurvivesReconcile() {
	s.storedSailor("firebase_uid42")
	s.store.SetFailReads(true)
	s.cache.GetOrCreate(s.ctx, "firebase_uid42", model.JoinFields{})
	s.cache.Rename(s.ctx, "firebase_uid42", "Starbuck")
	s.store.SetFailReads(false)

	p, err := s.cache.IncrementCounter(s.ctx, "firebase_uid42", model.CounterMonsters, 1)

	s.Require().NoError(err)
	s.Equal("Starbuck", p.Name)
	s.Equal(int64(50), p.FishCount)
	s.Equal("Starbuck", s.stored("firebase_uid42").Name)
}

func (s *CacheSuite) TestReadOutageForNewPlayerCreatesOnRecovery() {
	s.store.SetFailReads(true)
	s.cache.GetOrCreate(s.ctx, "guest_abcdef", model.JoinFields{})
	s.store.SetFailReads(false)

	_, err := s.cache.IncrementCounter(s.ctx, "guest_abcdef", model.CounterFish, 1)

	s.Require().NoError(err)
	s.Equal([]model.PlayerID{"guest_abcdef"}, s.store.Creates())
	s.Equal(int64(1), s.stored("guest_abcdef").FishCount)
}

func (s *CacheSuite) TestIncrementOverflowLeavesCounter() {
	s.join("p1")
	s.cache.IncrementCounter(s.ctx, "p1", model.CounterMoney, math.MaxInt64)
	s.store.Reset()

	_, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterMoney, 1)

	s.ErrorIs(err, model.ErrCounterOverflow)
	p, _ := s.cache.Get("p1")
	s.Equal(int64(math.MaxInt64), p.Money)
	s.Equal(0, s.store.UpdateCount("p1"))
}

// ApplyUpdate tests

func (s *CacheSuite) TestApplyUpdateIsVisibleImmediately() {
	s.join("p1")
	s.store.Reset()

	_, err := s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(1, 0, 2)})
	s.Require().NoError(err)

	p, err := s.cache.Get("p1")
	s.Require().NoError(err)
	s.Equal(model.Vec3{X: 1, Z: 2}, p.Position)
	s.Equal(s.clock.Now(), p.LastUpdate)
	// Join was just persisted, so this update stays in memory
	s.Equal(0, s.store.UpdateCount("p1"))
}

func (s *CacheSuite) TestApplyUpdateLeavesUnsetFields() {
	mode := model.ModeCharacter
	s.cache.GetOrCreate(s.ctx, "p1", model.JoinFields{Mode: &mode, Position: vec(5, 5, 5)})

	rot := 1.5
	p, err := s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Rotation: &rot})
	s.Require().NoError(err)

	s.Equal(1.5, p.Rotation)
	s.Equal(model.ModeCharacter, p.Mode)
	s.Equal(model.Vec3{X: 5, Y: 5, Z: 5}, p.Position)
}

func (s *CacheSuite) TestUpdatesWithinIntervalProduceOneWrite() {
	s.join("p1")
	s.clock.Advance(10 * time.Second)
	s.store.Reset()

	s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(1, 0, 0)})
	s.clock.Advance(time.Second)
	s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(2, 0, 0)})

	s.Equal(1, s.store.UpdateCount("p1"))
	s.Equal(1.0, s.stored("p1").Position.X)

	// The next qualifying update catches storage up
	s.clock.Advance(5 * time.Second)
	s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(3, 0, 0)})
	s.Equal(2, s.store.UpdateCount("p1"))
	s.Equal(3.0, s.stored("p1").Position.X)
}

func (s *CacheSuite) TestThrottledWriteCarriesOnlyWorldFields() {
	s.join("p1")
	s.clock.Advance(10 * time.Second)
	s.store.Reset()

	s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(1, 0, 0)})

	updates := s.store.Updates()
	s.Require().Len(updates, 1)
	patch := updates[0].Patch
	s.NotNil(patch.Position)
	s.NotNil(patch.LastUpdate)
	s.Nil(patch.FishCount)
	s.Nil(patch.Active)
}

func (s *CacheSuite) TestThrottledWriteFailureIsSwallowed() {
	s.join("p1")
	s.clock.Advance(10 * time.Second)
	s.store.SetFailWrites(true)

	p, err := s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(9, 0, 0)})

	s.Require().NoError(err)
	s.Equal(9.0, p.Position.X)
	cached, _ := s.cache.Get("p1")
	s.Equal(9.0, cached.Position.X)
}

func (s *CacheSuite) TestApplyUpdateUnknownPlayer() {
	_, err := s.cache.ApplyUpdate(s.ctx, "ghost", model.PlayerUpdate{Position: vec(1, 0, 0)})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// IncrementCounter tests

func (s *CacheSuite) TestIncrementCounterAlwaysPersists() {
	s.join("p1")
	s.store.Reset()

	s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)
	s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)

	s.Equal(2, s.store.UpdateCount("p1"))
	s.Equal(int64(2), s.stored("p1").FishCount)
}

func (s *CacheSuite) TestIncrementMoneyByAmount() {
	s.join("p1")

	p, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterMoney, 25)
	s.Require().NoError(err)

	s.Equal(int64(25), p.Money)
	s.Equal(int64(25), s.stored("p1").Money)
}

func (s *CacheSuite) TestNegativeMoneyIsRejected() {
	s.join("p1")
	s.cache.IncrementCounter(s.ctx, "p1", model.CounterMoney, 10)
	s.store.Reset()

	_, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterMoney, -5)

	s.ErrorIs(err, model.ErrNegativeDelta)
	p, _ := s.cache.Get("p1")
	s.Equal(int64(10), p.Money)
	s.Equal(0, s.store.UpdateCount("p1"))
}

func (s *CacheSuite) TestZeroFishDeltaIsRejected() {
	s.join("p1")

	_, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 0)
	s.ErrorIs(err, model.ErrInvalidDelta)
}

func (s *CacheSuite) TestUnknownCounterIsRejected() {
	s.join("p1")

	_, err := s.cache.IncrementCounter(s.ctx, "p1", model.Counter("gems"), 1)
	s.ErrorIs(err, model.ErrUnknownCounter)
}

func (s *CacheSuite) TestForcedWriteFailureKeepsNewState() {
	s.join("p1")
	s.store.SetFailWrites(true)

	p, err := s.cache.IncrementCounter(s.ctx, "p1", model.CounterMonsters, 1)

	s.ErrorIs(err, model.ErrPersistFailed)
	s.Require().NotNil(p)
	s.Equal(int64(1), p.MonsterKills)
	cached, _ := s.cache.Get("p1")
	s.Equal(int64(1), cached.MonsterKills)
}

func (s *CacheSuite) TestForcedWriteCatchesUpThrottledState() {
	s.join("p1")
	s.cache.ApplyUpdate(s.ctx, "p1", model.PlayerUpdate{Position: vec(4, 0, 0)})
	s.Equal(0.0, s.stored("p1").Position.X)

	s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)

	s.Equal(4.0, s.stored("p1").Position.X)
}

func (s *CacheSuite) TestConcurrentIncrementsAreSerialized() {
	s.join("p1")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.cache.IncrementCounter(s.ctx, "p1", model.CounterFish, 1)
		}()
	}
	wg.Wait()

	p, _ := s.cache.Get("p1")
	s.Equal(int64(40), p.FishCount)
	s.Equal(int64(40), s.stored("p1").FishCount)
}

// MarkInactive and Rename tests

func (s *CacheSuite) TestMarkInactivePersists() {
	s.join("p1")

	p, err := s.cache.MarkInactive(s.ctx, "p1")
	s.Require().NoError(err)

	s.False(p.Active)
	s.False(s.stored("p1").Active)
	s.Empty(s.cache.ActivePlayers())
}

func (s *CacheSuite) TestRename() {
	s.join("p1")

	p, err := s.cache.Rename(s.ctx, "p1", "  Queequeg ")
	s.Require().NoError(err)

	s.Equal("Queequeg", p.Name)
	s.Equal("Queequeg", s.stored("p1").Name)
}

func (s *CacheSuite) TestRenameRejectsBlank() {
	s.join("p1")

	_, err := s.cache.Rename(s.ctx, "p1", "   ")
	s.ErrorIs(err, model.ErrInvalidName)
}

// Hydration tests

func (s *CacheSuite) TestHydrateAllForcesInactive() {
	p := model.NewPlayer("p1", s.clock.Now())
	p.Active = true
	p.Money = 3
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, p))
	s.Require().NoError(s.backing.SaveIsland(s.ctx, &model.Island{ID: "i1", Radius: 50}))

	s.Require().NoError(s.cache.HydrateAll(s.ctx))

	cached, err := s.cache.Get("p1")
	s.Require().NoError(err)
	s.False(cached.Active)
	s.Equal(int64(3), cached.Money)
	s.False(s.stored("p1").Active)
	s.Empty(s.cache.ActivePlayers())
	s.Len(s.cache.Islands(), 1)
}

func (s *CacheSuite) TestHydrateAllStoreDownStartsEmpty() {
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, model.NewPlayer("p1", s.clock.Now())))
	s.store.SetFailReads(true)

	err := s.cache.HydrateAll(s.ctx)

	s.Error(err)
	_, err = s.cache.Get("p1")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *CacheSuite) TestRejoinAfterHydrateKeepsCounters() {
	p := model.NewPlayer("firebase_uid42", s.clock.Now())
	p.FishCount = 4
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, p))
	s.Require().NoError(s.cache.HydrateAll(s.ctx))

	joined := s.join("firebase_uid42")

	s.True(joined.Active)
	s.Equal(int64(4), joined.FishCount)
}

// Read tests

func (s *CacheSuite) TestActivePlayersOrderedByID() {
	s.join("p2")
	s.join("p1")

	players := s.cache.ActivePlayers()
	s.Require().Len(players, 2)
	s.Equal(model.PlayerID("p1"), players[0].ID)
	s.Equal(model.PlayerID("p2"), players[1].ID)
}

func (s *CacheSuite) TestGetReturnsCopy() {
	s.join("p1")

	p, _ := s.cache.Get("p1")
	p.Money = 1000

	again, _ := s.cache.Get("p1")
	s.Equal(int64(0), again.Money)
}

func (s *CacheSuite) TestLookupFallsBackToStore() {
	s.Require().NoError(s.backing.CreatePlayer(s.ctx, model.NewPlayer("offline", s.clock.Now())))

	p, err := s.cache.Lookup(s.ctx, "offline")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("offline"), p.ID)

	_, err = s.cache.Lookup(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *CacheSuite) TestAddIsland() {
	island := &model.Island{ID: "i1", Position: model.Vec3{X: 1}, Radius: 50, Type: "default"}

	s.Require().NoError(s.cache.AddIsland(s.ctx, island))

	s.Len(s.cache.Islands(), 1)
	stored, err := s.backing.ListIslands(s.ctx)
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *CacheSuite) TestIslandReturnsCopy() {
	s.Require().NoError(s.cache.AddIsland(s.ctx, &model.Island{ID: "i1", Radius: 50}))

	island, err := s.cache.Island("i1")
	s.Require().NoError(err)
	island.Radius = 1

	again, err := s.cache.Island("i1")
	s.Require().NoError(err)
	s.Equal(50.0, again.Radius)

	_, err = s.cache.Island("i2")
	s.ErrorIs(err, model.ErrIslandNotFound)
}
