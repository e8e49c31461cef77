package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/store/memory"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSettings settings.Values

func (f fixedSettings) Current() settings.Values { return settings.Values(f) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []notify.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingReports struct {
	mu      sync.Mutex
	matches []int64
}

func (r *recordingReports) Trigger(_ context.Context, matchID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, matchID)
}

var brnSeq atomic.Int64

type fixture struct {
	store    *memory.Store
	svc      *Service
	esc      *violation.Escalator
	notifier *recordingNotifier
	reports  *recordingReports
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, settings.Defaults())
}

func newFixtureWith(t *testing.T, v settings.Values) *fixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	f := &fixture{
		store:    memory.New(),
		notifier: &recordingNotifier{},
		reports:  &recordingReports{},
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.esc = violation.NewEscalator(f.store, fixedSettings(v), logger).WithClock(clock)
	f.svc = New(f.store, fixedSettings(v), logger,
		WithNotifier(f.notifier),
		WithReports(f.reports),
		WithViolations(f.esc),
		WithClock(clock),
	)
	return f
}

var requester = domain.Principal{ID: 100, Role: domain.RoleRequester}

func (f *fixture) contractor(t *testing.T, grade int, status domain.VerificationStatus, units ...domain.Equipment) domain.Contractor {
	t.Helper()
	ctx := context.Background()
	var c domain.Contractor
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.CreateContractor(ctx, domain.Contractor{
			Name:                       "driver",
			BusinessRegistrationNumber: fmt.Sprintf("BRN-%d", brnSeq.Add(1)),
			VerificationStatus:         status,
			Grade:                      grade,
			Active:                     true,
			CreatedAt:                  f.now,
		})
		if err != nil {
			return err
		}
		for _, u := range units {
			u.ContractorID = c.ID
			if _, err := tx.CreateEquipment(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}))
	return c
}

func crane() domain.Equipment {
	h := 30.0
	return domain.Equipment{Type: domain.EquipmentCrane, MaxHeight: &h, Status: domain.EquipmentActive}
}

func (f *fixture) verifiedDriver(t *testing.T, grade int) domain.Contractor {
	return f.contractor(t, grade, domain.VerificationVerified, crane())
}

func (f *fixture) job(t *testing.T, mutate ...func(*CreateJobInput)) domain.Job {
	t.Helper()
	in := CreateJobInput{
		SiteAddress:   "1 Main St",
		Latitude:      37.5,
		Longitude:     127.0,
		ScheduledAt:   f.now.Add(24 * time.Hour),
		EquipmentType: domain.EquipmentCrane,
	}
	for _, m := range mutate {
		m(&in)
	}
	j, err := f.svc.CreateJob(context.Background(), requester, in)
	require.NoError(t, err)
	return j
}

// matched returns a job accepted by a fresh grade 1 contractor.
func (f *fixture) matched(t *testing.T) (domain.Job, domain.Contractor) {
	t.Helper()
	j := f.job(t)
	c := f.verifiedDriver(t, domain.GradeFirst)
	_, err := f.svc.Accept(context.Background(), c.ID, j.ID, nil)
	require.NoError(t, err)
	return j, c
}

func (f *fixture) jobStatus(t *testing.T, id int64) domain.JobStatus {
	t.Helper()
	j, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return j.Status
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	j := f.job(t)
	assert.Equal(t, domain.JobOpen, j.Status)
	assert.Equal(t, domain.PriceFixed, j.PriceType)
	assert.Equal(t, []notify.Type{notify.NewDispatch}, f.notifier.types())

	_, err := f.svc.CreateJob(ctx, domain.Principal{ID: 1, Role: domain.RoleContractor}, CreateJobInput{})
	assert.ErrorIs(t, err, domain.ErrNotAllowed)

	tests := []struct {
		name   string
		mutate func(*CreateJobInput)
	}{
		{name: "no address", mutate: func(in *CreateJobInput) { in.SiteAddress = " " }},
		{name: "bad equipment", mutate: func(in *CreateJobInput) { in.EquipmentType = "TANK" }},
		{name: "bad latitude", mutate: func(in *CreateJobInput) { in.Latitude = 91 }},
		{name: "no schedule", mutate: func(in *CreateJobInput) { in.ScheduledAt = time.Time{} }},
		{name: "bad price type", mutate: func(in *CreateJobInput) { in.PriceType = "AUCTION" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreateJobInput{
				SiteAddress: "x", ScheduledAt: f.now, EquipmentType: domain.EquipmentCrane,
			}
			tt.mutate(&in)
			_, err := f.svc.CreateJob(ctx, requester, in)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestCreateJobSuspendedOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Acme")
	member := domain.Principal{ID: 7, Role: domain.RoleRequester, OrganizationID: &org.ID}

	_, err := f.esc.Suspend(ctx, domain.Principal{ID: 1, Role: domain.RoleAdmin}, violation.SuspendInput{
		Actor: domain.Actor{Type: domain.ActorOrganization, ID: org.ID}, Kind: domain.SuspensionPermanent,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateJob(ctx, member, CreateJobInput{
		SiteAddress: "x", ScheduledAt: f.now, EquipmentType: domain.EquipmentCrane,
	})
	assert.ErrorIs(t, err, domain.ErrSuspended)

	missing := int64(999)
	_, err = f.svc.CreateJob(ctx, domain.Principal{ID: 8, Role: domain.RoleRequester, OrganizationID: &missing}, CreateJobInput{
		SiteAddress: "x", ScheduledAt: f.now, EquipmentType: domain.EquipmentCrane,
	})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestAcceptPreconditionsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.job(t)

	unverified := f.contractor(t, domain.GradeFirst, domain.VerificationPending, crane())
	suspended := f.verifiedDriver(t, domain.GradeFirst)
	_, err := f.esc.Suspend(ctx, domain.Principal{ID: 1, Role: domain.RoleAdmin}, violation.SuspendInput{
		Actor: suspended.Actor(), Kind: domain.SuspensionTemporary, Days: 3,
	})
	require.NoError(t, err)
	noCrane := f.contractor(t, domain.GradeFirst, domain.VerificationVerified,
		domain.Equipment{Type: domain.EquipmentForklift, Status: domain.EquipmentActive})
	maintenance := f.contractor(t, domain.GradeFirst, domain.VerificationVerified,
		domain.Equipment{Type: domain.EquipmentCrane, Status: domain.EquipmentMaintenance})

	tests := []struct {
		name         string
		contractorID int64
		jobID        int64
		want         error
	}{
		{name: "unknown contractor", contractorID: 9999, jobID: j.ID, want: domain.ErrNotVerified},
		{name: "not verified", contractorID: unverified.ID, jobID: j.ID, want: domain.ErrNotVerified},
		{name: "suspended", contractorID: suspended.ID, jobID: j.ID, want: domain.ErrSuspended},
		{name: "unknown job", contractorID: noCrane.ID, jobID: 9999, want: domain.ErrJobNotFound},
		{name: "no matching equipment", contractorID: noCrane.ID, jobID: j.ID, want: domain.ErrNoMatchingEquipment},
		{name: "equipment in maintenance", contractorID: maintenance.ID, jobID: j.ID, want: domain.ErrNoMatchingEquipment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Accept(ctx, tt.contractorID, tt.jobID, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.JobOpen, f.jobStatus(t, j.ID))
		})
	}
}

func TestAcceptSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	price := int64(150000)
	j := f.job(t, func(in *CreateJobInput) { in.Price = &price })
	c := f.verifiedDriver(t, domain.GradeFirst)

	m, err := f.svc.Accept(ctx, c.ID, j.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, m.Status)
	assert.Equal(t, f.now, m.MatchedAt)
	assert.Equal(t, price, *m.FinalPrice)
	assert.NotZero(t, m.EquipmentID)
	assert.Equal(t, domain.JobMatched, f.jobStatus(t, j.ID))
	assert.Contains(t, f.notifier.types(), notify.DispatchAccepted)

	other := f.verifiedDriver(t, domain.GradeFirst)
	_, err = f.svc.Accept(ctx, other.ID, j.ID, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyMatched)
}

func TestAcceptChosenEquipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	low := 10.0
	minHeight := 20.0
	j := f.job(t, func(in *CreateJobInput) { in.MinHeight = &minHeight })
	c := f.contractor(t, domain.GradeFirst, domain.VerificationVerified,
		domain.Equipment{Type: domain.EquipmentCrane, MaxHeight: &low, Status: domain.EquipmentActive},
		crane(),
	)
	units, err := f.store.ListEquipment(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)

	_, err = f.svc.Accept(ctx, c.ID, j.ID, &units[0].ID)
	assert.ErrorIs(t, err, domain.ErrNoMatchingEquipment)

	stranger := int64(424242)
	_, err = f.svc.Accept(ctx, c.ID, j.ID, &stranger)
	assert.ErrorIs(t, err, domain.ErrEquipmentNotFound)

	m, err := f.svc.Accept(ctx, c.ID, j.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, units[1].ID, m.EquipmentID)
}

func TestAcceptIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.job(t)

	const n = 16
	drivers := make([]domain.Contractor, n)
	for i := range drivers {
		drivers[i] = f.verifiedDriver(t, domain.GradeFirst)
	}

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for _, d := range drivers {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, id, j.ID, nil)
			switch {
			case err == nil:
				wins.Add(1)
			case domain.KindOf(err) == domain.KindConflict:
				conflicts.Add(1)
			}
		}(d.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
}

func TestExposureScenario(t *testing.T) {
	v := settings.Defaults()
	v.Grade3Delay = 15 * time.Minute
	f := newFixtureWith(t, v)
	ctx := context.Background()

	j := f.job(t)
	a := f.verifiedDriver(t, domain.GradeFirst)
	b := f.verifiedDriver(t, domain.GradeThird)
	f.now = f.now.Add(time.Minute)

	listA, err := f.svc.ListOpenJobs(ctx, a.ID, OpenJobsQuery{})
	require.NoError(t, err)
	assert.Len(t, listA, 1)

	listB, err := f.svc.ListOpenJobs(ctx, b.ID, OpenJobsQuery{})
	require.NoError(t, err)
	assert.Empty(t, listB)

	_, err = f.svc.Accept(ctx, b.ID, j.ID, nil)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	m, err := f.svc.Accept(ctx, a.ID, j.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, m.Status)
	assert.Equal(t, domain.JobMatched, f.jobStatus(t, j.ID))
}

func TestListOpenJobsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedDriver(t, domain.GradeFirst)

	near := f.job(t)
	f.job(t, func(in *CreateJobInput) { in.Latitude, in.Longitude = 35.1, 129.0 }) // ~320km away
	f.job(t, func(in *CreateJobInput) { in.EquipmentType = domain.EquipmentForklift })
	f.job(t, func(in *CreateJobInput) { in.ScheduledAt = f.now.Add(-48 * time.Hour) })
	high := 4.5
	f.job(t, func(in *CreateJobInput) { in.MinRating = &high })

	all, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cranes, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{EquipmentType: domain.EquipmentCrane})
	require.NoError(t, err)
	assert.Len(t, cranes, 2)

	lat, lng := 37.51, 127.01
	nearby, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{
		EquipmentType: domain.EquipmentCrane, Latitude: &lat, Longitude: &lng,
	})
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, near.ID, nearby[0].ID)

	_, err = f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{Latitude: &lat})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	unverified := f.contractor(t, domain.GradeFirst, domain.VerificationPending)
	_, err = f.svc.ListOpenJobs(ctx, unverified.ID, OpenJobsQuery{})
	assert.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestListOpenJobsLimitCountsVisibleJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedDriver(t, domain.GradeThird)

	old := f.job(t)
	f.now = f.now.Add(30 * time.Minute)
	for i := 0; i < 3; i++ {
		f.job(t)
	}
	f.now = f.now.Add(time.Minute)

	jobs, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, old.ID, jobs[0].ID)
}

func TestListOpenJobsLimitPagesPastFarJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedDriver(t, domain.GradeFirst)

	near := f.job(t)
	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Second)
		f.job(t, func(in *CreateJobInput) { in.Latitude, in.Longitude = 35.1, 129.0 })
	}

	lat, lng := 37.51, 127.01
	jobs, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{Latitude: &lat, Longitude: &lng, Limit: 1})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, near.ID, jobs[0].ID)
}

func TestListOpenJobsHiddenFromSuspended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedDriver(t, domain.GradeFirst)
	f.job(t)

	_, err := f.esc.Suspend(ctx, domain.Principal{ID: 1, Role: domain.RoleAdmin}, violation.SuspendInput{
		Actor: c.Actor(), Kind: domain.SuspensionTemporary, Days: 1,
	})
	require.NoError(t, err)

	jobs, err := f.svc.ListOpenJobs(ctx, c.ID, OpenJobsQuery{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.matched(t)

	steps := []struct {
		name   string
		run    func() (domain.Match, error)
		match  domain.MatchStatus
		job    domain.JobStatus
		stamps func(domain.Match) *time.Time
	}{
		{"depart", func() (domain.Match, error) { return f.svc.Depart(ctx, c.ID, j.ID) }, domain.MatchEnRoute, domain.JobMatched,
			func(m domain.Match) *time.Time { return m.DepartedAt }},
		{"arrive", func() (domain.Match, error) { return f.svc.Arrive(ctx, c.ID, j.ID) }, domain.MatchArrived, domain.JobInProgress,
			func(m domain.Match) *time.Time { return m.ArrivedAt }},
		{"start work", func() (domain.Match, error) { return f.svc.StartWork(ctx, c.ID, j.ID) }, domain.MatchWorking, domain.JobInProgress,
			func(m domain.Match) *time.Time { return m.WorkStartedAt }},
		{"complete", func() (domain.Match, error) { return f.svc.Complete(ctx, c.ID, j.ID) }, domain.MatchCompleted, domain.JobInProgress,
			func(m domain.Match) *time.Time { return m.CompletedAt }},
	}
	for _, step := range steps {
		f.now = f.now.Add(10 * time.Minute)
		m, err := step.run()
		require.NoError(t, err, step.name)
		assert.Equal(t, step.match, m.Status, step.name)
		assert.Equal(t, step.job, f.jobStatus(t, j.ID), step.name)
		require.NotNil(t, step.stamps(m), step.name)
		assert.Equal(t, f.now, *step.stamps(m), step.name)
	}

	price := int64(180000)
	notes := "extra hour"
	m, err := f.svc.SignAsContractor(ctx, c.ID, j.ID, ContractorSignature{Signature: "sig-c", FinalPrice: &price, WorkNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, m.Status)
	assert.Equal(t, price, *m.FinalPrice)

	m, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "sig-client", SignerName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchSigned, m.Status)
	assert.NotNil(t, m.ContractorSignedAt)
	assert.NotNil(t, m.ClientSignedAt)
	assert.Equal(t, domain.JobCompleted, f.jobStatus(t, j.ID))
	assert.Equal(t, []int64{m.ID}, f.reports.matches)

	assert.Contains(t, f.notifier.types(), notify.DispatchArrived)
	assert.Contains(t, f.notifier.types(), notify.DispatchCompleted)
}

func TestTransitionsCannotSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.matched(t)

	_, err := f.svc.Complete(ctx, c.ID, j.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Arrive(ctx, c.ID, j.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	m, err := f.svc.GetMatch(ctx, requester, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, m.Status)
	assert.Nil(t, m.ArrivedAt)

	_, err = f.svc.Depart(ctx, c.ID, j.ID)
	require.NoError(t, err)
	_, err = f.svc.Depart(ctx, c.ID, j.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.StartWork(ctx, c.ID, j.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionWrongContractor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, _ := f.matched(t)
	other := f.verifiedDriver(t, domain.GradeFirst)

	_, err := f.svc.Depart(ctx, other.ID, j.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	open := f.job(t)
	_, err = f.svc.Depart(ctx, other.ID, open.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func (f *fixture) toCompleted(t *testing.T) (domain.Job, domain.Contractor) {
	t.Helper()
	ctx := context.Background()
	j, c := f.matched(t)
	for _, step := range []func(context.Context, int64, int64) (domain.Match, error){
		f.svc.Depart, f.svc.Arrive, f.svc.StartWork, f.svc.Complete,
	} {
		_, err := step(ctx, c.ID, j.ID)
		require.NoError(t, err)
	}
	return j, c
}

func TestSignatureOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.toCompleted(t)

	_, err := f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
	assert.ErrorIs(t, err, domain.ErrContractorSignatureRequired)

	_, err = f.svc.ConfirmAsOrganization(ctx, requester, j.ID, OrganizationConfirmation{})
	assert.ErrorIs(t, err, domain.ErrClientSignatureRequired)

	other := f.verifiedDriver(t, domain.GradeFirst)
	_, err = f.svc.SignAsContractor(ctx, other.ID, j.ID, ContractorSignature{Signature: "x"})
	assert.ErrorIs(t, err, domain.ErrNotAllowed)

	_, err = f.svc.SignAsContractor(ctx, c.ID, j.ID, ContractorSignature{Signature: "sig"})
	require.NoError(t, err)
	_, err = f.svc.SignAsContractor(ctx, c.ID, j.ID, ContractorSignature{Signature: "sig"})
	assert.ErrorIs(t, err, domain.ErrAlreadySigned)

	_, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
	require.NoError(t, err)
	_, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
	assert.ErrorIs(t, err, domain.ErrAlreadySigned)

	stranger := domain.Principal{ID: 555, Role: domain.RoleRequester}
	_, err = f.svc.ConfirmAsOrganization(ctx, stranger, j.ID, OrganizationConfirmation{})
	assert.ErrorIs(t, err, domain.ErrNotAllowed)

	signer := "Park"
	m, err := f.svc.ConfirmAsOrganization(ctx, requester, j.ID, OrganizationConfirmation{SignerName: &signer})
	require.NoError(t, err)
	assert.True(t, m.OrgConfirmed)
	assert.Equal(t, domain.MatchSigned, m.Status)

	_, err = f.svc.ConfirmAsOrganization(ctx, requester, j.ID, OrganizationConfirmation{})
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestContractorSignatureNeedsCompletion(t *testing.T) {
	f := newFixture(t)
	j, c := f.matched(t)

	_, err := f.svc.SignAsContractor(context.Background(), c.ID, j.ID, ContractorSignature{Signature: "sig"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.SignAsClient(context.Background(), j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
	assert.ErrorIs(t, err, domain.ErrContractorSignatureRequired)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("open job", func(t *testing.T) {
		j := f.job(t)
		got, err := f.svc.Cancel(ctx, requester, j.ID, CancelInput{Reason: "plans changed"})
		require.NoError(t, err)
		assert.Equal(t, domain.JobCancelled, got.Status)

		_, err = f.svc.Cancel(ctx, requester, j.ID, CancelInput{})
		assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	})

	t.Run("matched job", func(t *testing.T) {
		j, c := f.matched(t)
		_, err := f.svc.Cancel(ctx, domain.Principal{ID: c.ID, Role: domain.RoleContractor}, j.ID, CancelInput{})
		assert.ErrorIs(t, err, domain.ErrNotAllowed)

		_, err = f.svc.Cancel(ctx, domain.Principal{ID: 1, Role: domain.RoleAdmin}, j.ID, CancelInput{Reason: "ops"})
		require.NoError(t, err)

		m, err := f.store.GetMatchByJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchCancelled, m.Status)
		assert.Equal(t, "ops", *m.CancelReason)
		assert.Contains(t, f.notifier.types(), notify.DispatchCancelled)

		_, err = f.svc.Depart(ctx, c.ID, j.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("completed job", func(t *testing.T) {
		j, c := f.toCompleted(t)
		_, err := f.svc.SignAsContractor(ctx, c.ID, j.ID, ContractorSignature{Signature: "sig"})
		require.NoError(t, err)
		_, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, requester, j.ID, CancelInput{})
		assert.ErrorIs(t, err, domain.ErrJobCompleted)
	})
}

func TestCancelNoShowRecordsViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.matched(t)

	_, err := f.svc.Cancel(ctx, requester, j.ID, CancelInput{NoShow: true})
	require.NoError(t, err)

	actor := c.Actor()
	violations, err := f.store.ListViolations(ctx, store.ViolationQuery{Actor: &actor})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, domain.WarningNoShow, violations[0].Category)
	assert.Equal(t, j.ID, *violations[0].JobID)

	got, err := f.store.GetContractor(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WarningCount)
}

func TestCancelNoShowAfterArrivalRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.matched(t)
	_, err := f.svc.Depart(ctx, c.ID, j.ID)
	require.NoError(t, err)
	_, err = f.svc.Arrive(ctx, c.ID, j.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, requester, j.ID, CancelInput{NoShow: true})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, domain.JobInProgress, f.jobStatus(t, j.ID))

	open := f.job(t)
	_, err = f.svc.Cancel(ctx, requester, open.ID, CancelInput{NoShow: true})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRematchAfterCancelledMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, _ := f.matched(t)
	_, err := f.svc.Cancel(ctx, requester, j.ID, CancelInput{})
	require.NoError(t, err)

	other := f.verifiedDriver(t, domain.GradeFirst)
	_, err = f.svc.Accept(ctx, other.ID, j.ID, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyMatched)
}

func TestRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.toCompleted(t)

	_, err := f.svc.Rate(ctx, requester, j.ID, 5, "")
	assert.ErrorIs(t, err, domain.ErrClientSignatureRequired)

	_, err = f.svc.SignAsContractor(ctx, c.ID, j.ID, ContractorSignature{Signature: "sig"})
	require.NoError(t, err)
	_, err = f.svc.SignAsClient(ctx, j.ID, ClientSignature{Signature: "s", SignerName: "Lee"})
	require.NoError(t, err)

	_, err = f.svc.Rate(ctx, requester, j.ID, 6, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	r, err := f.svc.Rate(ctx, requester, j.ID, 4, "good")
	require.NoError(t, err)
	assert.Equal(t, c.ID, r.ContractorID)

	_, err = f.svc.Rate(ctx, requester, j.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)

	got, err := f.store.GetContractor(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RatingCount)
	assert.InDelta(t, 4.0, got.Rating, 1e-9)
}

func TestGetMatchAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j, c := f.matched(t)

	_, err := f.svc.GetMatch(ctx, domain.Principal{ID: c.ID, Role: domain.RoleContractor}, j.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetMatch(ctx, domain.Principal{ID: c.ID + 1000, Role: domain.RoleContractor}, j.ID)
	assert.ErrorIs(t, err, domain.ErrNotAllowed)

	_, err = f.svc.GetMatch(ctx, requester, 9999)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestDistanceKm(t *testing.T) {
	// Seoul City Hall to Busan Station
	d := DistanceKm(37.5663, 126.9779, 35.1151, 129.0422)
	assert.InDelta(t, 329, d, 5)
	assert.InDelta(t, 0, DistanceKm(37.5, 127, 37.5, 127), 1e-9)
}
