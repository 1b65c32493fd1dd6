package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	apperrors "github.com/namelens/guildrest/internal/errors"
	"github.com/namelens/guildrest/internal/observability"
	servermw "github.com/namelens/guildrest/internal/server/middleware"
)

// maxRelayBody caps request bodies accepted by the relay.
const maxRelayBody = 8 << 20

// relayedRequestHeaders are copied from the caller onto the upstream call.
// Authorization is never forwarded; the relay authenticates with its own
// token.
var relayedRequestHeaders = []string{"Content-Type", "X-Audit-Log-Reason"}

// relayedResponseHeaders are copied from the upstream response.
var relayedResponseHeaders = []string{
	"Content-Type",
	engine.HeaderLimit,
	engine.HeaderRemaining,
	engine.HeaderReset,
	engine.HeaderResetAfter,
	engine.HeaderBucket,
	engine.HeaderGlobal,
	engine.HeaderScope,
	engine.HeaderRetryAfter,
}

func (s *Server) relayHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("dispatcher not configured"))
		return
	}

	path := strings.TrimPrefix(r.URL.EscapedPath(), RelayPrefix)
	rt, params, ok := s.deps.Catalog.Find(r.Method, path)
	if !ok {
		HandleError(w, r, apperrors.FromDispatchError(r.Context(), route.ErrUnknownRoute))
		return
	}

	call, err := engine.CallFor(rt, params)
	if err != nil {
		HandleError(w, r, apperrors.FromDispatchError(r.Context(), err))
		return
	}
	call.Query = r.URL.Query()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRelayBody))
	if err != nil {
		HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body too large or unreadable"))
		return
	}
	call.Body = body

	call.Header = http.Header{}
	for _, name := range relayedRequestHeaders {
		if value := r.Header.Get(name); value != "" {
			call.Header.Set(name, value)
		}
	}

	res, err := s.deps.Dispatcher.Do(r.Context(), call)

	var upstream *engine.HTTPError
	if err != nil && !errors.As(err, &upstream) {
		if observability.ServerLogger != nil {
			observability.ServerLogger.Debug("relay call failed",
				zap.String("route", rt.Name),
				zap.String("bucket", call.Key.String()),
				zap.String("request_id", servermw.GetRequestID(r.Context())),
				zap.Error(err))
		}
		copyHeaders(w.Header(), res.Header)
		HandleError(w, r, apperrors.FromDispatchError(r.Context(), err))
		return
	}

	copyHeaders(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}

func copyHeaders(dst, src http.Header) {
	for _, name := range relayedResponseHeaders {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
}
