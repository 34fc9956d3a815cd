package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/triox/internal/common"
	"github.com/dmitrijs2005/triox/internal/dbx"
	"github.com/dmitrijs2005/triox/internal/logging/logtest"
	"github.com/dmitrijs2005/triox/internal/server/auth"
	"github.com/dmitrijs2005/triox/internal/server/events"
	"github.com/dmitrijs2005/triox/internal/server/models"
	"github.com/dmitrijs2005/triox/internal/server/password"
	"github.com/dmitrijs2005/triox/internal/server/repositories/deletions"
	"github.com/dmitrijs2005/triox/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/triox/internal/server/repositories/users"
	"github.com/dmitrijs2005/triox/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// memStore backs the fake repositories. Every handle, transactional or not,
// sees the same data; rollback is asserted through sqlmock instead.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*models.Credential
	deletions []*models.AccountDeletion

	fetchErr  error
	deleteErr error
	createErr error
	updateErr error
	listErr   error

	// stealOnDelete removes the row just before Delete runs, as a
	// concurrent request would.
	stealOnDelete bool
	deleteCalls   int
}

func newMemStore(creds ...*models.Credential) *memStore {
	st := &memStore{users: map[string]*models.Credential{}}
	for _, c := range creds {
		st.users[c.UserName] = c
	}
	return st
}

type fakeUsersRepo struct{ st *memStore }

func (r fakeUsersRepo) FetchCredential(_ context.Context, name string) (*models.Credential, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.fetchErr != nil {
		return nil, r.st.fetchErr
	}
	c, ok := r.st.users[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r fakeUsersRepo) Delete(_ context.Context, name string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.deleteCalls++
	if r.st.deleteErr != nil {
		return r.st.deleteErr
	}
	if r.st.stealOnDelete {
		delete(r.st.users, name)
	}
	if _, ok := r.st.users[name]; !ok {
		return common.ErrorNotFound
	}
	delete(r.st.users, name)
	return nil
}

type fakeDeletionsRepo struct{ st *memStore }

func (r fakeDeletionsRepo) Create(_ context.Context, d *models.AccountDeletion) (*models.AccountDeletion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.createErr != nil {
		return nil, r.st.createErr
	}
	cp := *d
	cp.ID = fmt.Sprintf("d%d", len(r.st.deletions)+1)
	r.st.deletions = append(r.st.deletions, &cp)
	out := cp
	return &out, nil
}

func (r fakeDeletionsRepo) UpdateStatus(_ context.Context, id, status, purgeErr string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.updateErr != nil {
		return r.st.updateErr
	}
	for _, d := range r.st.deletions {
		if d.ID == id {
			d.PurgeStatus, d.PurgeError = status, purgeErr
			return nil
		}
	}
	return common.ErrorNotFound
}

func (r fakeDeletionsRepo) ListUnfinished(_ context.Context, limit int, pendingBefore time.Time) ([]*models.AccountDeletion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.listErr != nil {
		return nil, r.st.listErr
	}
	var out []*models.AccountDeletion
	for _, d := range r.st.deletions {
		eligible := d.PurgeStatus == models.PurgeFailed ||
			(d.PurgeStatus == models.PurgePending && d.UpdatedAt.Before(pendingBefore))
		if eligible && len(out) < limit {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRepoMgr struct{ st *memStore }

func (m fakeRepoMgr) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m fakeRepoMgr) Users(dbx.DBTX) users.Repository                 { return fakeUsersRepo{m.st} }
func (m fakeRepoMgr) Deletions(dbx.DBTX) deletions.Repository         { return fakeDeletionsRepo{m.st} }
func (m fakeRepoMgr) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return nil }

type fakeVerifier struct {
	ok  bool
	err error
}

func (v fakeVerifier) Verify(string, string) (bool, error) { return v.ok, v.err }

type fakePurger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakePurger) Purge(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return p.err
}

type fakeSessions struct {
	mu      sync.Mutex
	revoked []auth.Session
}

func (f *fakeSessions) Revoke(_ context.Context, s auth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, s)
}

type fakePublisher struct {
	got []events.AccountDeleted
	err error
}

func (p *fakePublisher) PublishAccountDeleted(_ context.Context, e events.AccountDeleted) error {
	p.got = append(p.got, e)
	return p.err
}
func (p *fakePublisher) Close() error { return nil }

// --- helpers ---

type harness struct {
	svc      *AccountService
	mock     sqlmock.Sqlmock
	st       *memStore
	purger   *fakePurger
	sessions *fakeSessions
	pub      *fakePublisher
	log      *logtest.Recorder
}

var testParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newHarness(t *testing.T, v Verifier, creds ...*models.Credential) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		mock:     mock,
		st:       newMemStore(creds...),
		purger:   &fakePurger{},
		sessions: &fakeSessions{},
		pub:      &fakePublisher{},
		log:      logtest.New(),
	}
	h.svc = NewAccountService(db, fakeRepoMgr{h.st}, v, h.purger, h.sessions, h.pub, h.log)
	return h
}

func aliceSession() auth.Session {
	return auth.Session{UserID: "u-alice", UserName: "alice", TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}
}

func aliceCred(t *testing.T, secret string) *models.Credential {
	t.Helper()
	hash, err := password.NewArgon2(testParams).Hash(secret)
	require.NoError(t, err)
	return &models.Credential{UserID: "u-alice", UserName: "alice", PasswordHash: hash}
}

// --- DeleteAccount ---

func TestDeleteAccount_Success(t *testing.T) {
	h := newHarness(t, password.NewArgon2(testParams), aliceCred(t, "s3cret"))
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")
	require.NoError(t, err)

	assert.NotContains(t, h.st.users, "alice")
	assert.Equal(t, []string{"alice"}, h.purger.calls)
	require.Len(t, h.sessions.revoked, 1)
	assert.Equal(t, "jti-1", h.sessions.revoked[0].TokenID)

	require.Len(t, h.st.deletions, 1)
	d := h.st.deletions[0]
	assert.Equal(t, "users/alice/", d.Namespace)
	assert.Equal(t, models.PurgeCompleted, d.PurgeStatus)

	require.Len(t, h.pub.got, 1)
	assert.True(t, h.pub.got[0].Purged)
	assert.Equal(t, "d1", h.pub.got[0].DeletionID)

	assert.Empty(t, h.log.ByLevel("error"))
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_UnknownAccount(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "whatever")

	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Zero(t, h.st.deleteCalls)
	assert.Empty(t, h.purger.calls)
	assert.Empty(t, h.sessions.revoked)
	assert.Empty(t, h.pub.got)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_StaleSessionForRecreatedAccount(t *testing.T) {
	cred := aliceCred(t, "s3cret")
	cred.UserID = "u-alice-2"
	h := newHarness(t, password.NewArgon2(testParams), cred)

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Contains(t, h.st.users, "alice")
	assert.Zero(t, h.st.deleteCalls)
}

func TestDeleteAccount_WrongSecret(t *testing.T) {
	h := newHarness(t, password.NewArgon2(testParams), aliceCred(t, "s3cret"))

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "guess")

	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Contains(t, h.st.users, "alice")
	assert.Zero(t, h.st.deleteCalls)
	assert.Empty(t, h.purger.calls)
	assert.Empty(t, h.sessions.revoked)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_MalformedHashIsInternal(t *testing.T) {
	cred := &models.Credential{UserID: "u-alice", UserName: "alice", PasswordHash: "not-a-phc-string"}
	h := newHarness(t, password.NewArgon2(testParams), cred)

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Contains(t, h.st.users, "alice")
	assert.Len(t, h.log.ByLevel("error"), 1)
}

func TestDeleteAccount_FetchFailureIsInternal(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.st.fetchErr = errors.New("db error: connection refused")

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrorInternal)
	entries := h.log.ByLevel("error")
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Attrs["username"])
	assert.Equal(t, "account", entries[0].Attrs["module"])
}

func TestDeleteAccount_SequentialDeletes(t *testing.T) {
	h := newHarness(t, password.NewArgon2(testParams), aliceCred(t, "s3cret"))
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	require.NoError(t, h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret"))
	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Len(t, h.purger.calls, 1)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_ConcurrentDeleteLosesRace(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.st.stealOnDelete = true
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Empty(t, h.purger.calls)
	assert.Empty(t, h.sessions.revoked)
	assert.Empty(t, h.st.deletions)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_DeleteFailureIsInternal(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.st.deleteErr = errors.New("db error: deadlock")
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.Empty(t, h.purger.calls)
	assert.Empty(t, h.sessions.revoked)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_TombstoneFailureRollsBack(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.st.createErr = errors.New("db error: disk full")
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.Empty(t, h.purger.calls)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAccount_CommitFailureIsInternal(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.mock.ExpectBegin()
	h.mock.ExpectCommit().WillReturnError(errors.New("commit lost"))

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")

	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.Empty(t, h.purger.calls)
}

func TestDeleteAccount_PurgeFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.purger.err = &storage.PurgeError{Namespace: "users/alice/", Err: errors.New("bucket unreachable")}
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	err := h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret")
	require.NoError(t, err)

	assert.NotContains(t, h.st.users, "alice")
	assert.Len(t, h.sessions.revoked, 1)

	errs := h.log.ByLevel("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "owned data purge failed", errs[0].Msg)
	assert.Equal(t, "alice", errs[0].Attrs["username"])
	assert.Equal(t, "users/alice/", errs[0].Attrs["namespace"])

	d := h.st.deletions[0]
	assert.Equal(t, models.PurgeFailed, d.PurgeStatus)
	assert.Contains(t, d.PurgeError, "bucket unreachable")

	require.Len(t, h.pub.got, 1)
	assert.False(t, h.pub.got[0].Purged)
}

func TestDeleteAccount_BookkeepingFailuresAreWarnings(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true}, aliceCred(t, "s3cret"))
	h.st.updateErr = errors.New("db error: gone")
	h.pub.err = errors.New("kafka down")
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	require.NoError(t, h.svc.DeleteAccount(context.Background(), aliceSession(), "s3cret"))

	assert.Len(t, h.log.ByLevel("warn"), 2)
	assert.Empty(t, h.log.ByLevel("error"))
}

func TestDeleteAccount_WithFilesystemPurger(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "users", "alice", "docs", "a.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	st := newMemStore(aliceCred(t, "s3cret"))
	svc := NewAccountService(db, fakeRepoMgr{st}, password.NewArgon2(testParams),
		storage.NewFSPurger(root), &fakeSessions{}, nil, logtest.New())

	require.NoError(t, svc.DeleteAccount(context.Background(), aliceSession(), "s3cret"))

	_, err = os.Stat(filepath.Join(root, "users", "alice"))
	assert.True(t, os.IsNotExist(err))
}

// --- RetryFailedPurges ---

func TestRetryFailedPurges(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	h.st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserName: "alice", Namespace: "users/alice/", PurgeStatus: models.PurgeFailed},
		{ID: "d2", UserName: "bob", Namespace: "users/bob/", PurgeStatus: models.PurgeCompleted},
		{ID: "d3", UserName: "carol", Namespace: "users/carol/", PurgeStatus: models.PurgePending},
	}

	res, err := h.svc.RetryFailedPurges(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Attempted: 2, Completed: 2}, res)
	assert.Equal(t, []string{"alice", "carol"}, h.purger.calls)
	for _, d := range h.st.deletions {
		assert.Equal(t, models.PurgeCompleted, d.PurgeStatus, d.ID)
	}
}

func TestRetryFailedPurges_PurgeStillFailing(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	h.st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserName: "alice", Namespace: "users/alice/", PurgeStatus: models.PurgeFailed, PurgeError: "old"},
	}
	h.purger.err = errors.New("still down")

	res, err := h.svc.RetryFailedPurges(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Attempted: 1, Failed: 1}, res)
	assert.Equal(t, "still down", h.st.deletions[0].PurgeError)
	assert.Len(t, h.log.ByLevel("error"), 1)
}

func TestRetryFailedPurges_SkipsNamespaceOfLiveAccount(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "users", "alice", "new-upload.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := newMemStore(&models.Credential{UserID: "u-new", UserName: "alice", PasswordHash: "h"})
	st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserID: "u-old", UserName: "alice", Namespace: "users/alice/", PurgeStatus: models.PurgeFailed},
	}
	log := logtest.New()
	svc := NewAccountService(db, fakeRepoMgr{st}, fakeVerifier{ok: true},
		storage.NewFSPurger(root), &fakeSessions{}, nil, log)

	res, err := svc.RetryFailedPurges(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Attempted: 1, Failed: 1}, res)
	_, err = os.Stat(file)
	assert.NoError(t, err, "live account data must survive")
	assert.Equal(t, models.PurgeFailed, st.deletions[0].PurgeStatus)
	assert.Contains(t, st.deletions[0].PurgeError, ErrNamespaceReclaimed.Error())
	assert.Len(t, log.ByLevel("error"), 1)
}

func TestRetryFailedPurges_AccountCheckFailureSkipsPurge(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	h.st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserName: "alice", Namespace: "users/alice/", PurgeStatus: models.PurgeFailed},
	}
	h.st.fetchErr = errors.New("db error: timeout")

	res, err := h.svc.RetryFailedPurges(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Attempted: 1, Failed: 1}, res)
	assert.Empty(t, h.purger.calls)
	assert.Equal(t, models.PurgeFailed, h.st.deletions[0].PurgeStatus)
}

func TestRetryFailedPurges_LeavesFreshPendingAlone(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return now }
	h.st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserName: "alice", PurgeStatus: models.PurgePending, UpdatedAt: now.Add(-time.Minute)},
		{ID: "d2", UserName: "bob", PurgeStatus: models.PurgePending, UpdatedAt: now.Add(-PendingPurgeGrace - time.Second)},
	}

	res, err := h.svc.RetryFailedPurges(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Attempted: 1, Completed: 1}, res)
	assert.Equal(t, []string{"bob"}, h.purger.calls)
	assert.Equal(t, models.PurgePending, h.st.deletions[0].PurgeStatus)
}

func TestRetryFailedPurges_RespectsLimit(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	for i := 0; i < 5; i++ {
		h.st.deletions = append(h.st.deletions, &models.AccountDeletion{
			ID: fmt.Sprintf("d%d", i), UserName: fmt.Sprintf("user%d", i), PurgeStatus: models.PurgeFailed,
		})
	}

	res, err := h.svc.RetryFailedPurges(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempted)
}

func TestRetryFailedPurges_ListError(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	h.st.listErr = errors.New("db error: timeout")

	_, err := h.svc.RetryFailedPurges(context.Background(), 10)
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRetryFailedPurges_CanceledContext(t *testing.T) {
	h := newHarness(t, fakeVerifier{ok: true})
	h.st.deletions = []*models.AccountDeletion{
		{ID: "d1", UserName: "alice", PurgeStatus: models.PurgeFailed},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.svc.RetryFailedPurges(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Attempted)
	assert.Empty(t, h.purger.calls)
}
