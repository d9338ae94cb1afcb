package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/store"
)

// maxTransactionBody bounds POST /transactions; a maximal create with base58
// text and two signatures is well under this
const maxTransactionBody = 16 << 10

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	APIResponse
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleStats godoc
//
//	@Summary		Store statistics
//	@Description	Live record count and the slot of the last applied transaction
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	APIResponse{data=StatsResponse}
//	@Router			/stats [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	sendSuccess(w, StatsResponse{Records: stats.Records, Slot: stats.Slot})
}

// handleSubmit godoc
//
//	@Summary		Submit a transaction
//	@Description	Execute a signed create_tweet, update_tweet or delete_tweet
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			transaction	body		TransactionRequest	true	"Signed transaction"
//	@Success		200			{object}	APIResponse{data=ledger.Receipt}
//	@Failure		400			{object}	APIResponse
//	@Failure		403			{object}	APIResponse
//	@Failure		404			{object}	APIResponse
//	@Failure		409			{object}	APIResponse
//	@Router			/transactions [post]
//	@Security		ApiKeyAuth
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx TransactionRequest
	body := http.MaxBytesReader(w, r.Body, maxTransactionBody)
	if err := json.NewDecoder(body).Decode(&tx); err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.InvalidInstruction, "invalid transaction body: %v", err)
		}
		sendFault(w, err)
		return
	}

	receipt, err := s.ledger.Submit(r.Context(), &tx)
	if err != nil {
		sendFault(w, err)
		return
	}
	sendSuccess(w, receipt)
}

// handleGetRecord godoc
//
//	@Summary		Fetch a record
//	@Description	Read one record by its base58 id
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	APIResponse{data=store.Record}
//	@Failure		400	{object}	APIResponse
//	@Failure		404	{object}	APIResponse
//	@Router			/records/{id} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := identity.ParsePublicKey(chi.URLParam(r, "id"))
	if err != nil {
		sendFault(w, fault.New(fault.InvalidInstruction, "record id: %v", err))
		return
	}

	record, err := s.ledger.Fetch(r.Context(), id)
	if err != nil {
		sendFault(w, err)
		return
	}
	sendSuccess(w, record)
}

// handleListRecords godoc
//
//	@Summary		List records
//	@Description	Return every record matching all given filters; no filters lists everything
//	@Tags			records
//	@Produce		json
//	@Param			owner			query		string		false	"Owner public key (base58)"
//	@Param			topic			query		string		false	"Exact topic"
//	@Param			topic_prefix	query		string		false	"Topic prefix"
//	@Param			content			query		string		false	"Exact content"
//	@Param			content_prefix	query		string		false	"Content prefix"
//	@Param			memcmp			query		[]string	false	"Raw offset:base58 match"	collectionFormat(multi)
//	@Success		200				{object}	APIResponse{data=RecordList}
//	@Failure		400				{object}	APIResponse
//	@Router			/records [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filters, err := query.ParseParams(r.URL.Query())
	if err != nil {
		sendFault(w, err)
		return
	}

	records, err := s.ledger.Scan(r.Context(), filters...)
	if err != nil {
		sendFault(w, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	sendSuccess(w, RecordList{Records: records, Count: len(records)})
}
