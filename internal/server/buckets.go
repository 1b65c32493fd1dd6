package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/namelens/guildrest/internal/core"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/core/store"
	apperrors "github.com/namelens/guildrest/internal/errors"
	"github.com/namelens/guildrest/internal/metrics"
)

// BucketsResponse is the body of GET /v1/buckets.
type BucketsResponse struct {
	Buckets []core.BucketSnapshot   `json:"buckets"`
	Global  core.GlobalLockSnapshot `json:"global"`
	Stored  []store.BucketEntry     `json:"stored,omitempty"`
}

// ResetResponse is the body of DELETE /v1/buckets.
type ResetResponse struct {
	Live   int   `json:"live"`
	Stored int64 `json:"stored"`
}

func (s *Server) bucketsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("dispatcher not configured"))
		return
	}

	scheduler := s.deps.Dispatcher.Scheduler()
	query := bucketQuery(r)
	query.All = query.All || (query.Key == "" && query.Prefix == "")

	resp := BucketsResponse{Buckets: []core.BucketSnapshot{}, Global: scheduler.GlobalLock()}
	for _, snapshot := range scheduler.Buckets() {
		if query.Match(snapshot.Key) {
			resp.Buckets = append(resp.Buckets, snapshot)
		}
	}
	metrics.SetGlobalLockActive(resp.Global.Locked)

	if stored, _ := strconv.ParseBool(r.URL.Query().Get("stored")); stored && s.deps.Store != nil {
		entries, err := s.deps.Store.ListBuckets(r.Context(), query)
		if err != nil {
			HandleError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list stored buckets"))
			return
		}
		resp.Stored = entries
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resetBucketsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("dispatcher not configured"))
		return
	}

	query := bucketQuery(r)
	if err := query.Validate(); err != nil {
		HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "bucket selector required"))
		return
	}

	var resp ResetResponse
	scheduler := s.deps.Dispatcher.Scheduler()
	for _, snapshot := range scheduler.Buckets() {
		if query.Match(snapshot.Key) && scheduler.Reset(snapshot.Key) {
			resp.Live++
		}
	}

	if s.deps.Store != nil {
		n, err := s.deps.Store.ResetBuckets(r.Context(), query)
		if err != nil {
			HandleError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to reset stored buckets"))
			return
		}
		resp.Stored = n
	}

	metrics.RecordBucketReset("live", int64(resp.Live))
	metrics.RecordBucketReset("stored", resp.Stored)
	metrics.RecordOperation("bucket_reset", nil)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) routesHandler(w http.ResponseWriter, r *http.Request) {
	routes := s.deps.Catalog.Routes()
	if routes == nil {
		routes = []route.Route{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func bucketQuery(r *http.Request) store.BucketQuery {
	values := r.URL.Query()
	all, _ := strconv.ParseBool(values.Get("all"))
	return store.BucketQuery{
		All:    all,
		Key:    values.Get("key"),
		Prefix: values.Get("prefix"),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
