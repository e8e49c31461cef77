package postgres_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cho-y-j/dispatch/internal/dispatch"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/store/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dispatch"),
		tcpostgres.WithUsername("dispatch"),
		tcpostgres.WithPassword("dispatch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(32)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func seedDriver(t *testing.T, st *postgres.Store, n int) domain.Contractor {
	t.Helper()
	ctx := context.Background()
	height := 25.0
	var c domain.Contractor
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.CreateContractor(ctx, domain.Contractor{
			Name:                       fmt.Sprintf("driver-%d", n),
			BusinessRegistrationNumber: fmt.Sprintf("123-45-%05d", n),
			VerificationStatus:         domain.VerificationVerified,
			Grade:                      domain.GradeFirst,
			Active:                     true,
			CreatedAt:                  time.Now(),
			UpdatedAt:                  time.Now(),
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateEquipment(ctx, domain.Equipment{
			ContractorID: c.ID,
			Type:         domain.EquipmentAerialPlatform,
			MaxHeight:    &height,
			Status:       domain.EquipmentActive,
			CreatedAt:    time.Now(),
		})
		return err
	}))
	return c
}

func TestConcurrentAcceptHasSingleWinner(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	logger := quietLogger()

	st := postgres.New(db, logger, postgres.WithLockTimeout(2*time.Second))
	provider := settings.NewProvider(settings.SourceFunc(st.Settings), logger)
	_, err := provider.Reload(ctx)
	require.NoError(t, err)
	svc := dispatch.New(st, provider, logger)

	job, err := svc.CreateJob(ctx, domain.Principal{ID: 1, Role: domain.RoleRequester}, dispatch.CreateJobInput{
		SiteAddress:   "12 Teheran-ro",
		Latitude:      37.5,
		Longitude:     127.03,
		ScheduledAt:   time.Now().Add(2 * time.Hour),
		EquipmentType: domain.EquipmentAerialPlatform,
	})
	require.NoError(t, err)

	const racers = 20
	drivers := make([]domain.Contractor, racers)
	for i := range drivers {
		drivers[i] = seedDriver(t, st, i)
	}

	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for _, d := range drivers {
		g.Go(func() error {
			_, err := svc.Accept(ctx, d.ID, job.ID, nil)
			switch {
			case err == nil:
				wins.Add(1)
			case domain.KindOf(err) == domain.KindConflict:
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), conflicts.Load())

	var live int
	require.NoError(t, db.GetContext(ctx, &live,
		`SELECT count(*) FROM matches WHERE job_id = $1 AND status <> 'CANCELLED'`, job.ID))
	assert.Equal(t, 1, live)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobMatched, got.Status)
}

func TestSuspensionLifecycleRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	st := postgres.New(db, quietLogger())
	c := seedDriver(t, st, 900)

	now := time.Now().UTC().Truncate(time.Microsecond)
	end := now.Add(-time.Minute)
	var s domain.Suspension
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		s, err = tx.CreateSuspension(ctx, domain.Suspension{
			ActorType: domain.ActorContractor,
			ActorID:   c.ID,
			Kind:      domain.SuspensionTemporary,
			Reason:    "3 warnings",
			StartAt:   now.Add(-time.Hour),
			EndAt:     &end,
			Active:    true,
			Automatic: true,
			CreatedAt: now,
		})
		return err
	}))

	due, err := st.ListExpiredSuspensions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, s.ID, due[0].ID)

	flipped, err := st.ExpireSuspension(ctx, s.ID, now)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = st.ExpireSuspension(ctx, s.ID, now)
	require.NoError(t, err)
	assert.False(t, flipped)

	_, err = st.ActiveSuspension(ctx, c.Actor(), now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettingsRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	st := postgres.New(db, quietLogger())

	require.NoError(t, st.PutSetting(ctx, settings.KeyGrade2DelayMinutes, "7"))

	provider := settings.NewProvider(settings.SourceFunc(st.Settings), quietLogger())
	changed, err := provider.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 7*time.Minute, provider.Current().Grade2Delay)
}
