package factory

import (
	"time"

	"github.com/mcoot/sailsync/internal/config"
	"github.com/mcoot/sailsync/internal/dependencies/mocks"
	"github.com/mcoot/sailsync/internal/services/identity"
	"github.com/mcoot/sailsync/internal/storage"
	"github.com/mcoot/sailsync/internal/storage/memory"
	"github.com/mcoot/sailsync/internal/testutil"
)

// Credentials accepted by test apps
const (
	TestToken   = "test-token"
	TestSubject = "uid42"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDGenerator
}

// NewTestApp creates an App on memory storage with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithStore(memory.New())
}

// NewTestAppWithStore creates an App on store with mocked dependencies.
// TestToken verifies as TestSubject.
func NewTestAppWithStore(store storage.Store) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDGenerator()
	verifier := identity.NewStaticVerifier(map[string]string{TestToken: TestSubject})

	app := newWithDependencies(config.Default(), store, mockClock, mockIDs, verifier, testutil.NopLogger())

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
	}
}
