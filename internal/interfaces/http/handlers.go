package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ladder"
	"github.com/trackledger/trackledger/internal/ledger"
)

type appendRequest struct {
	Timestamp int64 `json:"timestamp"`
	Events    []struct {
		Type    ledger.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	} `json:"events"`
}

type evidenceRequest struct {
	LinkedTicket   int64   `json:"linked_ticket"`
	Action         string  `json:"action"`
	ExecutionPrice float64 `json:"execution_price"`
	ExecutionTime  int64   `json:"execution_time"`
	Source         string  `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]
	start := time.Now()

	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.AppendTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	payloads := make([]ledger.Payload, 0, len(req.Events))
	for _, e := range req.Events {
		p, err := ledger.DecodePayload(e.Type, e.Payload)
		if err != nil {
			s.metrics.AppendTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		payloads = append(payloads, p)
	}

	results, err := s.appender.AppendWithRetry(r.Context(), chainID, req.Timestamp, payloads...)
	s.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrValidation):
			s.metrics.AppendTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			s.metrics.AppendTotal.WithLabelValues("conflict").Inc()
			writeError(w, http.StatusConflict, "chain tail conflict, retry")
		default:
			s.metrics.AppendTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("chain_id", chainID).Msg("append failed")
			writeError(w, http.StatusInternalServerError, "append failed")
		}
		return
	}
	s.metrics.AppendTotal.WithLabelValues("ok").Inc()
	for _, res := range results {
		if res.Checkpoint {
			s.metrics.CheckpointsWritten.Inc()
		}
	}

	for i, res := range results {
		s.hub.Publish(chainID, map[string]interface{}{
			"sequence":    res.Sequence,
			"event_type":  payloads[i].Type(),
			"hash_prefix": ledger.TruncateHash(res.Hash),
			"timestamp":   req.Timestamp,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"results": results})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]
	state, err := s.store.ReadState(r.Context(), chainID)
	if err != nil {
		if errors.Is(err, ledger.ErrChainNotFound) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		log.Error().Err(err).Str("chain_id", chainID).Msg("read state failed")
		writeError(w, http.StatusInternalServerError, "read state failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]
	from := queryInt(r, "from", 1)
	to := queryInt(r, "to", 0)

	result, err := s.verifier.Verify(r.Context(), chainID, from, to)
	if err != nil {
		s.metrics.VerifyTotal.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, ledger.ErrChainNotFound):
			writeError(w, http.StatusNotFound, "unknown chain")
		case errors.Is(err, ledger.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("chain_id", chainID).Msg("verification failed")
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}
	if result.Valid {
		s.metrics.VerifyTotal.WithLabelValues("valid").Inc()
	} else {
		s.metrics.VerifyTotal.WithLabelValues("invalid").Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]
	from := queryInt(r, "from", 1)
	to := queryInt(r, "to", 0)

	rep, err := s.reports.Build(r.Context(), chainID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrChainNotFound):
			writeError(w, http.StatusNotFound, "unknown chain")
		case errors.Is(err, ledger.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("chain_id", chainID).Msg("report build failed")
			writeError(w, http.StatusInternalServerError, "report build failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]

	var req evidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	note := ledger.BrokerEvidenceNote{
		LinkedTicket:   req.LinkedTicket,
		Action:         req.Action,
		ExecutionPrice: req.ExecutionPrice,
		ExecutionTime:  req.ExecutionTime,
		Source:         req.Source,
	}
	if err := note.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := corroboration.Evidence{
		ChainID:        chainID,
		LinkedTicket:   req.LinkedTicket,
		Action:         req.Action,
		ExecutionPrice: req.ExecutionPrice,
		ExecutionTime:  req.ExecutionTime,
		Source:         req.Source,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := s.evidence.InsertEvidence(r.Context(), ev); err != nil {
		log.Error().Err(err).Str("chain_id", chainID).Msg("insert evidence failed")
		writeError(w, http.StatusInternalServerError, "insert evidence failed")
		return
	}
	if _, err := s.appender.AppendWithRetry(r.Context(), chainID, req.ExecutionTime, note); err != nil {
		log.Error().Err(err).Str("chain_id", chainID).Msg("anchor evidence failed")
		writeError(w, http.StatusInternalServerError, "anchor evidence failed")
		return
	}
	s.metrics.EvidenceIngested.Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleCorroboration(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain"]

	tail, err := s.store.ReadTail(r.Context(), chainID)
	if err != nil {
		log.Error().Err(err).Str("chain_id", chainID).Msg("read tail failed")
		writeError(w, http.StatusInternalServerError, "read tail failed")
		return
	}
	if tail.Sequence == 0 {
		writeError(w, http.StatusNotFound, "unknown chain")
		return
	}
	events, err := s.store.ReadRange(r.Context(), chainID, 1, tail.Sequence)
	if err != nil {
		log.Error().Err(err).Str("chain_id", chainID).Msg("read range failed")
		writeError(w, http.StatusInternalServerError, "read range failed")
		return
	}
	evidence, err := s.evidence.ListEvidence(r.Context(), chainID)
	if err != nil {
		log.Error().Err(err).Str("chain_id", chainID).Msg("list evidence failed")
		writeError(w, http.StatusInternalServerError, "list evidence failed")
		return
	}

	matched := corroboration.Match(
		corroboration.TradesFromEvents(events), evidence, corroboration.DefaultTolerances())
	writeJSON(w, http.StatusOK, matched)
}

func (s *Server) handleLadder(w http.ResponseWriter, r *http.Request) {
	var facts ladder.Facts
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	thresholds, err := s.thresholds.Thresholds(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("load ladder thresholds failed")
		writeError(w, http.StatusInternalServerError, "load thresholds failed")
		return
	}
	level := ladder.Classify(facts, thresholds)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level": int(level),
		"name":  level.String(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, mux.Vars(r)["chain"])
}

func queryInt(r *http.Request, key string, def int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
