package keepalive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/kv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKeys() Keys {
	return Keys{ConfigPrefix: "hangup", AuthPrefix: "hangup_auth"}
}

// alwaysDueSchedule puts every offset inside the window.
func alwaysDueSchedule() Schedule {
	return Schedule{Cycle: 300 * time.Second, HalfWidth: 150 * time.Second, Policy: PolicyWindow}
}

func newTestService(t *testing.T, requireToken bool, pinger Pinger) (*Service, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	svc := NewService(store, ServiceConfig{
		Keys:          testKeys(),
		Schedule:      alwaysDueSchedule(),
		RequireToken:  requireToken,
		TokenCacheTTL: time.Minute,
		Workers:       3,
		ExcerptLimit:  100,
	}, pinger, nil, discardLogger())
	return svc, store
}

func createConfig(t *testing.T, svc *Service, userID, token, name string) Created {
	t.Helper()
	created, err := svc.Create(context.Background(), CreateRequest{
		UserID:     userID,
		UserToken:  token,
		ConfigName: name,
		TargetUID:  "uid-" + name,
		Credential: "SESSDATA=secret-" + name,
	})
	require.NoError(t, err)
	return created
}

func TestCreateStoresActiveRecord(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, false, nil)
	svc.SetClock(func() time.Time { return now })

	created := createConfig(t, svc, "u1", "", "daily")

	assert.True(t, strings.HasPrefix(created.ConfigID, "cfg_"))
	assert.Contains(t, created.Message, "runs every 5m0s")
	assert.Empty(t, created.Record.Cookie, "returned record is redacted")

	raw, err := store.Get(context.Background(), "hangup:u1:"+created.ConfigID)
	require.NoError(t, err)
	rec, err := decodeConfig("k", raw)
	require.NoError(t, err)

	assert.Equal(t, "SESSDATA=secret-daily", rec.Cookie)
	assert.True(t, rec.IsActive)
	assert.Equal(t, 0, rec.ExecutionCount)
	assert.Nil(t, rec.LastExecuted)
	assert.Equal(t, now, rec.CreatedAt)
	require.NotNil(t, rec.NextExecution)
	assert.True(t, rec.NextExecution.After(now))
	assert.GreaterOrEqual(t, rec.ExecutionOffset, 0)
	assert.Less(t, rec.ExecutionOffset, 300)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	valid := CreateRequest{UserID: "u1", ConfigName: "n", TargetUID: "t", Credential: "c"}

	tests := []struct {
		name  string
		edit  func(r *CreateRequest)
		field string
	}{
		{"missing user", func(r *CreateRequest) { r.UserID = "" }, "userId"},
		{"user with colon", func(r *CreateRequest) { r.UserID = "a:b" }, "userId"},
		{"missing name", func(r *CreateRequest) { r.ConfigName = "  " }, "configName"},
		{"missing target", func(r *CreateRequest) { r.TargetUID = "" }, "targetUID"},
		{"missing credential", func(r *CreateRequest) { r.Credential = "" }, "credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.edit(&req)
			_, err := svc.Create(context.Background(), req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestListNeverExposesCredential(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	createConfig(t, svc, "u1", "", "a")
	createConfig(t, svc, "u1", "", "b")
	createConfig(t, svc, "u2", "", "c")

	records, err := svc.List(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	body, err := json.Marshal(records)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "SESSDATA")
	assert.NotContains(t, string(body), `"cookie"`)
	for _, rec := range records {
		assert.Equal(t, "u1", rec.UserID)
	}
}

func TestListEmptyIsNonNil(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	records, err := svc.List(context.Background(), "nobody", "")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListDoesNotMatchUserIDPrefixes(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	createConfig(t, svc, "u1", "", "a")
	createConfig(t, svc, "u10", "", "b")

	records, err := svc.List(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ConfigName)
}

func TestListSkipsUndecodableRecords(t *testing.T) {
	svc, store := newTestService(t, false, nil)
	createConfig(t, svc, "u1", "", "a")
	require.NoError(t, store.Put(context.Background(), "hangup:u1:broken", "{not json"))

	records, err := svc.List(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestToggleTwiceRestoresState(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	created := createConfig(t, svc, "u1", "", "a")
	ctx := context.Background()

	off, err := svc.Toggle(ctx, "u1", "", created.ConfigID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Nil(t, off.NextExecution)

	on, err := svc.Toggle(ctx, "u1", "", created.ConfigID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	assert.NotNil(t, on.NextExecution)
	assert.Equal(t, created.Record.ExecutionOffset, on.ExecutionOffset)
}

func TestToggleUnknownConfig(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	_, err := svc.Toggle(context.Background(), "u1", "", "cfg_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleRejectsOtherUsersConfig(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	created := createConfig(t, svc, "u1", "", "a")

	_, err := svc.Toggle(context.Background(), "u2", "", created.ConfigID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc, store := newTestService(t, false, nil)
	created := createConfig(t, svc, "u1", "", "a")
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "u1", "", created.ConfigID))
	require.NoError(t, svc.Delete(ctx, "u1", "", created.ConfigID))
	require.NoError(t, svc.Delete(ctx, "u1", "", "cfg_never_existed"))

	_, err := store.Get(ctx, "hangup:u1:"+created.ConfigID)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestTokenAuthentication(t *testing.T) {
	svc, _ := newTestService(t, true, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.List(ctx, "u1", "guess")
	assert.ErrorIs(t, err, ErrForbidden, "user without an auth record")

	auth, err := svc.IssueToken(ctx, "u1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, auth.UserToken)

	_, err = svc.List(ctx, "u1", "wrong")
	assert.ErrorIs(t, err, ErrForbidden)

	records, err := svc.List(ctx, "u1", auth.UserToken)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = svc.List(ctx, "u2", auth.UserToken)
	assert.ErrorIs(t, err, ErrForbidden, "tokens are per user")
}

func TestIssueTokenRotationRequiresCurrentToken(t *testing.T) {
	svc, _ := newTestService(t, true, nil)
	ctx := context.Background()

	first, err := svc.IssueToken(ctx, "u1", "")
	require.NoError(t, err)

	_, err = svc.IssueToken(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.IssueToken(ctx, "u1", "wrong")
	assert.ErrorIs(t, err, ErrForbidden)

	second, err := svc.IssueToken(ctx, "u1", first.UserToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.UserToken, second.UserToken)

	assert.ErrorIs(t, svc.Authenticate(ctx, "u1", first.UserToken), ErrForbidden, "old token is revoked")
	assert.NoError(t, svc.Authenticate(ctx, "u1", second.UserToken))
}

func TestRotateTokenSkipsCurrentTokenCheck(t *testing.T) {
	svc, _ := newTestService(t, true, nil)
	ctx := context.Background()

	_, err := svc.IssueToken(ctx, "u1", "")
	require.NoError(t, err)

	rotated, err := svc.RotateToken(ctx, "u1")
	require.NoError(t, err)
	assert.NoError(t, svc.Authenticate(ctx, "u1", rotated.UserToken))
}

func TestCreateWithTokenAuth(t *testing.T) {
	svc, _ := newTestService(t, true, nil)
	ctx := context.Background()

	auth, err := svc.IssueToken(ctx, "u1", "")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateRequest{UserID: "u1", ConfigName: "a", TargetUID: "t", Credential: "c"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	created := createConfig(t, svc, "u1", auth.UserToken, "a")
	assert.NotEmpty(t, created.ConfigID)
}

func TestListAll(t *testing.T) {
	svc, store := newTestService(t, false, nil)
	createConfig(t, svc, "u1", "", "a")
	createConfig(t, svc, "u2", "", "b")
	_, err := svc.IssueToken(context.Background(), "u1", "")
	require.NoError(t, err)

	records, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2, "auth records are not configs")

	keys, err := store.List(context.Background(), "hangup_auth:")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestListOwnedSkipsTokenCheck(t *testing.T) {
	svc, _ := newTestService(t, true, nil)
	ctx := context.Background()
	rec, err := svc.RotateToken(ctx, "u1")
	require.NoError(t, err)
	createConfig(t, svc, "u1", rec.UserToken, "a")

	records, err := svc.ListOwned(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Cookie)

	_, err = svc.ListOwned(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}
