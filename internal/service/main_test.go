package service_test

import (
	"testing"
	"time"

	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/mocks"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			Issuer:    "crowd-labeling-test",
			TokenTTL:  time.Hour,
		},
		Sampling: config.SamplingConfig{
			DefaultSize:     5,
			DefaultGoldSize: 1,
		},
		Import: config.ImportConfig{
			BatchSize: 2,
		},
	}
}

type testEnv struct {
	store *mocks.Store
	svc   *service.Services
	admin *models.User
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(), opts...)
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config, opts ...service.Option) *testEnv {
	t.Helper()
	store := mocks.NewStore()
	return &testEnv{
		store: store,
		svc:   service.NewServices(store.Repos(), cfg, zerolog.Nop(), opts...),
		admin: store.AddUser("admin", models.ClientTypeAdmin),
	}
}

// gold seeds a location carrying a gold standard
func (e *testEnv) gold(factoryID string, landUsage models.LandUsage, expansion models.Expansion) *models.Location {
	loc := e.store.AddLocation(factoryID)
	e.store.AddGoldStandard(e.admin.ID, loc.ID, landUsage, expansion)
	return loc
}

func answer(locationID int64, landUsage, expansion int) *models.AnswerInput {
	root := "https://tiles.example.org/"
	return &models.AnswerInput{
		LocationID:    &locationID,
		SourceURLRoot: &root,
		LandUsage:     &landUsage,
		Expansion:     &expansion,
	}
}

func batch(answers ...*models.AnswerInput) []*models.AnswerInput {
	return answers
}
