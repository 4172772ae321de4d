package pocketbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

// fakePocketBase serves just enough of the records API for the client: one
// collection, auth with a fixed token, filter on the key field only.
type fakePocketBase struct {
	t         *testing.T
	mu        chan struct{}
	records   map[string]map[string]any
	authCalls int
	token     string
}

func newFakePocketBase(t *testing.T) *fakePocketBase {
	f := &fakePocketBase{
		t:       t,
		mu:      make(chan struct{}, 1),
		records: make(map[string]map[string]any),
		token:   "token-1",
	}
	f.mu <- struct{}{}
	return f
}

func (f *fakePocketBase) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		<-f.mu
		defer func() { f.mu <- struct{}{} }()

		if r.URL.Path == "/api/collections/_superusers/auth-with-password" {
			f.authCalls++
			writeJSON(w, map[string]any{"token": f.token})
			return
		}
		if r.Header.Get("Authorization") != f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet:
			f.list(w, r)
		case r.Method == http.MethodPost:
			f.create(w, r)
		case r.Method == http.MethodPatch:
			f.update(w, r)
		case r.Method == http.MethodDelete:
			f.remove(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (f *fakePocketBase) list(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	var items []map[string]any
	for id, fields := range f.records {
		if filter != "" && !strings.Contains(filter, fields[sink.FieldKey].(string)) {
			continue
		}
		item := map[string]any{"id": id}
		for k, v := range fields {
			item[k] = v
		}
		items = append(items, item)
	}
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, map[string]any{"page": 1, "perPage": 500, "totalPages": 1, "items": items})
}

func (f *fakePocketBase) create(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := "rec-" + fields[sink.FieldKey].(string)
	f.records[id] = fields
	writeJSON(w, map[string]any{"id": id})
}

func (f *fakePocketBase) update(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if _, ok := f.records[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.records[id] = fields
	writeJSON(w, map[string]any{"id": id})
}

func (f *fakePocketBase) remove(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if _, ok := f.records[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(f.records, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.PocketBaseSettings{
		URL:         server.URL,
		Credentials: config.Credentials{Email: "admin@example.com", Password: "hunter2"},
		HTTPTimeout: 2 * time.Second,
	})
}

func TestUpsertCreateThenUpdate(t *testing.T) {
	fake := newFakePocketBase(t)
	client := newTestClient(t, fake.handler())
	ctx := context.Background()

	result, err := client.Upsert(ctx, "race_performance", "2025-07-01_ST", map[string]any{
		sink.FieldKey: "2025-07-01_ST",
		"race_name":   "Opening",
	})
	require.NoError(t, err)
	require.Equal(t, schema.ResultCreated, result)

	result, err = client.Upsert(ctx, "race_performance", "2025-07-01_ST", map[string]any{
		sink.FieldKey: "2025-07-01_ST",
		"race_name":   "Opening Handicap",
	})
	require.NoError(t, err)
	require.Equal(t, schema.ResultUpdated, result)

	stored, err := client.Get(ctx, "race_performance", "2025-07-01_ST")
	require.NoError(t, err)
	require.Equal(t, "Opening Handicap", stored.Fields["race_name"])
	require.Equal(t, 1, fake.authCalls, "token must be reused across calls")
}

func TestGetAbsentMapsToNotFound(t *testing.T) {
	fake := newFakePocketBase(t)
	client := newTestClient(t, fake.handler())
	_, err := client.Get(context.Background(), "race_performance", "2025-07-01_HV")
	require.True(t, errs.IsNotFound(err), "got %v", err)
}

func TestExpiredTokenRefreshedOnce(t *testing.T) {
	fake := newFakePocketBase(t)
	client := newTestClient(t, fake.handler())
	ctx := context.Background()

	_, err := client.Upsert(ctx, "race_performance", "2025-07-01_ST", map[string]any{
		sink.FieldKey: "2025-07-01_ST",
	})
	require.NoError(t, err)

	// server rotates its token; the client's copy is now stale
	fake.token = "token-2"
	_, err = client.Get(ctx, "race_performance", "2025-07-01_ST")
	require.NoError(t, err)
	require.Equal(t, 2, fake.authCalls)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   errs.Code
	}{
		{http.StatusForbidden, errs.CodeFatalSink},
		{http.StatusTooManyRequests, errs.CodeTransient},
		{http.StatusBadGateway, errs.CodeTransient},
		{http.StatusUnprocessableEntity, errs.CodeInvalid},
	}
	for _, tc := range cases {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "auth-with-password") {
				writeJSON(w, map[string]any{"token": "t"})
				return
			}
			w.WriteHeader(tc.status)
		}))
		_, err := client.List(context.Background(), "race_performance", sink.Filter{})
		require.Error(t, err, "status %d", tc.status)
		require.Equal(t, tc.want, errs.CodeOf(err), "status %d", tc.status)
	}
}

func TestRejectedCredentialsAreFatal(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	_, err := client.List(context.Background(), "race_performance", sink.Filter{})
	require.True(t, errs.IsFatalSink(err), "got %v", err)
}

func TestDeleteByID(t *testing.T) {
	fake := newFakePocketBase(t)
	client := newTestClient(t, fake.handler())
	ctx := context.Background()

	_, err := client.Upsert(ctx, "race_payout_pools", "2025-07-01_ST_R1_WIN", map[string]any{
		sink.FieldKey: "2025-07-01_ST_R1_WIN",
	})
	require.NoError(t, err)

	stored, err := client.Get(ctx, "race_payout_pools", "2025-07-01_ST_R1_WIN")
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "race_payout_pools", stored.ID))

	_, err = client.Get(ctx, "race_payout_pools", "2025-07-01_ST_R1_WIN")
	require.True(t, errs.IsNotFound(err))
}
