package apihttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"castgate/internal/domain"
	"castgate/internal/metrics"
)

// writeCastHeaders sets the fixed casting-compatibility headers expected by
// DLNA/UPnP renderers and Chromecast receivers.
func writeCastHeaders(h http.Header) {
	h.Set("Content-Type", "video/mp4")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("transferMode.dlna.org", "Streaming")
	h.Set("TimeSeekRange.dlna.org", "npt=0.00-")
	h.Set("contentFeatures.dlna.org", "DLNA.ORG_OP=01;DLNA.ORG_CI=0;")
}

func writeRangeHeaders(h http.Header, readAfter, exclusiveEnd, size int64) {
	// The end bound is emitted exclusive, matching what cast renderers
	// consuming this gateway have historically been served.
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", readAfter, exclusiveEnd, size))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(exclusiveEnd-readAfter, 10))
}

func writeFilenameHeader(h http.Header, filename string) {
	h.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, url.PathEscape(filename)))
}

// handleStream routes /stream/{message_id}/{token} by method: GET streams,
// OPTIONS and PUT answer protocol discovery regardless of token validity.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions, http.MethodPut:
		writeCastHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.handleStreamGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStreamGet(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/stream/"), "/"), "/")
	if len(segments) != 2 {
		writeError(w, http.StatusUnauthorized, "invalid_request", "invalid stream path")
		return
	}

	// The path segments must be numeric; anything else is rejected before
	// the token check so probes cannot distinguish the two.
	messageID, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil || messageID <= 0 {
		writeError(w, http.StatusUnauthorized, "invalid_request", "invalid stream path")
		return
	}
	partial, err := strconv.ParseUint(segments[1], 10, 32)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_request", "invalid stream path")
		return
	}

	// Recomputing the token from the path is the sole access-control
	// check; the URL itself is the credential.
	token, err := domain.EncodeToken(messageID, uint32(partial))
	if err != nil || !s.tokenAuthorized(token) {
		writeError(w, http.StatusForbidden, "unauthorized", "unknown or expired token")
		return
	}

	fetchOffset, skip, end := int64(0), int64(0), openEnd
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		fetchOffset, skip, end, err = parseBlockRange(rangeHeader, s.blockSize)
		if err != nil {
			writeStreamError(w, err)
			return
		}
	}
	if skip > s.blockSize {
		writeError(w, http.StatusBadRequest, "invalid_request", "range skip exceeds block size")
		return
	}

	msg, err := s.resolveMessage(r.Context(), messageID)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	if !msg.Streamable() {
		writeError(w, http.StatusNotFound, "not_found", "message media is not streamable")
		return
	}

	size := msg.Document.Size
	readAfter := fetchOffset + skip

	if readAfter > size {
		writeError(w, http.StatusBadRequest, "invalid_request", "range start beyond content size")
		return
	}
	if end != openEnd && end > size {
		writeError(w, http.StatusBadRequest, "invalid_request", "range end beyond content size")
		return
	}
	if end == openEnd {
		end = size
	}

	status := http.StatusOK
	if readAfter > 0 || end != size {
		status = http.StatusPartialContent
	}

	header := w.Header()
	writeRangeHeaders(header, readAfter, end, size)
	writeFilenameHeader(header, streamFilename(msg))
	writeCastHeaders(header)
	w.WriteHeader(status)

	s.pumpBlocks(w, r, msg, token, fetchOffset, skip, end)
}

// pumpBlocks drives the block-fetch loop for one stream request: it feeds
// the idle debounce, pulls fixed-size blocks from the backend, restores
// byte-exact range semantics via skip/truncate and writes to the client
// until the window is filled or the client disconnects. The loop paces
// itself on the client's write completion, so a slow client throttles the
// backend fetch rate.
func (s *Server) pumpBlocks(w http.ResponseWriter, r *http.Request, msg domain.MediaMessage, token domain.Token, cursor, skip, end int64) {
	flusher, _ := w.(http.Flusher)
	size := msg.Document.Size

	for cursor < end {
		s.feedDebounce(msg.ID, msg.FromID, token, size)

		block, err := s.backend.GetBlock(r.Context(), msg, cursor, s.blockSize)
		if err != nil {
			// Headers are already out; all we can do is stop writing.
			s.logger.Warn("block fetch failed",
				slog.String("token", token.String()),
				slog.Int64("offset", cursor),
				slog.String("error", err.Error()),
			)
			return
		}
		if len(block) == 0 {
			return
		}
		metrics.BlocksFetchedTotal.Inc()

		next := cursor + int64(len(block))
		chunk := block
		if skip > 0 {
			if skip >= int64(len(chunk)) {
				return
			}
			chunk = chunk[skip:]
			skip = 0
		}
		if next > end {
			chunk = chunk[:int64(len(chunk))-(next-end)]
		}

		if r.Context().Err() != nil {
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		metrics.StreamedBytesTotal.Add(float64(len(chunk)))

		s.recordBlock(token, cursor)
		cursor = next
	}
}

// streamFilename returns the document's filename, falling back to a
// synthetic name derived from the document identifier.
func streamFilename(msg domain.MediaMessage) string {
	if name := strings.TrimSpace(msg.Document.FileName); name != "" {
		return name
	}
	return fmt.Sprintf("file_%d", msg.Document.ID)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("gone"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "stream history not configured")
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		limit = parsed
	}

	closures, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	if closures == nil {
		closures = []domain.StreamClosure{}
	}
	writeJSON(w, http.StatusOK, closures)
}
