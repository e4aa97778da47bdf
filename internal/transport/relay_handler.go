// Package transport exposes the relay over a JSON REST API.
package transport

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/merkle"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/txparser"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/utils"
	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

const maxBodyBytes = 1 << 20

// RelayHandler serves the relay REST routes.
type RelayHandler struct {
	relay    *relay.Relay
	verifier *merkle.Verifier
	logger   *zap.Logger
}

// NewRelayHandler returns a RelayHandler instance.
func NewRelayHandler(r *relay.Relay, verifier *merkle.Verifier, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{relay: r, verifier: verifier, logger: logger}
}

// Register mounts the relay routes on router.
func (h *RelayHandler) Register(router *mux.Router) {
	router.HandleFunc("/v1/relay/initialize", h.Initialize).Methods(http.MethodPost)
	router.HandleFunc("/v1/relay/headers", h.SubmitHeader).Methods(http.MethodPost)
	router.HandleFunc("/v1/relay/headers/{hash}", h.GetHeader).Methods(http.MethodGet)
	router.HandleFunc("/v1/relay/tip", h.Tip).Methods(http.MethodGet)
	router.HandleFunc("/v1/relay/target/{bits}", h.Target).Methods(http.MethodGet)
	router.HandleFunc("/v1/relay/verify-inclusion", h.VerifyInclusion).Methods(http.MethodPost)
	router.HandleFunc("/v1/tx/parse", h.ParseTransaction).Methods(http.MethodPost)
}

type (
	initializeRequest struct {
		Header           string `json:"header"`
		Height           uint32 `json:"height"`
		ChainWork        string `json:"chain_work"`
		LastRetargetTime uint32 `json:"last_retarget_time"`
	}

	submitHeaderRequest struct {
		Header        string `json:"header"`
		Height        uint32 `json:"height"`
		PayoutAccount string `json:"payout_account"`
	}

	blockHashResponse struct {
		BlockHash string `json:"block_hash"`
	}

	headerResponse struct {
		BlockHash        string `json:"block_hash"`
		Height           uint32 `json:"height"`
		Header           string `json:"header"`
		ChainWork        string `json:"chain_work"`
		LastRetargetTime uint32 `json:"last_retarget_time"`
		Submitter        string `json:"submitter,omitempty"`
	}

	tipResponse struct {
		BlockHash string `json:"block_hash"`
		Height    uint32 `json:"height"`
		ChainWork string `json:"chain_work"`
	}

	targetResponse struct {
		Bits   uint32 `json:"bits"`
		Target string `json:"target"`
	}

	verifyInclusionRequest struct {
		TxID          string `json:"txid"`
		BlockHeight   uint32 `json:"block_height"`
		TxIndex       uint32 `json:"tx_index"`
		Proof         string `json:"proof"`
		Confirmations uint32 `json:"confirmations"`
	}

	verifyInclusionResponse struct {
		Included bool `json:"included"`
	}

	parseTransactionRequest struct {
		Transaction string `json:"transaction"`
	}

	parsedOutput struct {
		Index  uint8  `json:"index"`
		Value  uint64 `json:"value"`
		Type   string `json:"type"`
		Script string `json:"script"`
		Data   string `json:"data,omitempty"`
	}

	parseTransactionResponse struct {
		NumInputs  uint8          `json:"num_inputs"`
		NumOutputs uint8          `json:"num_outputs"`
		Outputs    []parsedOutput `json:"outputs"`
	}

	errorResponse struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}
)

// Initialize seeds the relay with a trusted header.
func (h *RelayHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !h.decode(w, r, &req) {
		return
	}

	rawHeader, err := hex.DecodeString(req.Header)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("header must be a hex string"))
		return
	}

	chainWork, ok := new(big.Int).SetString(req.ChainWork, 10)
	if !ok || chainWork.Sign() < 0 {
		h.writeError(w, http.StatusBadRequest, errors.New("chain_work must be a non-negative decimal string"))
		return
	}

	blockHash, err := h.relay.Initialize(rawHeader, req.Height, chainWork, req.LastRetargetTime)
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, blockHashResponse{
		BlockHash: hex.EncodeToString(blockHash[:]),
	})
}

// SubmitHeader appends a header to the chain.
func (h *RelayHandler) SubmitHeader(w http.ResponseWriter, r *http.Request) {
	var req submitHeaderRequest
	if !h.decode(w, r, &req) {
		return
	}

	rawHeader, err := hex.DecodeString(req.Header)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("header must be a hex string"))
		return
	}

	blockHash, err := h.relay.SubmitHeader(rawHeader, req.Height, req.PayoutAccount)
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, blockHashResponse{
		BlockHash: hex.EncodeToString(blockHash[:]),
	})
}

// GetHeader returns the stored record for a block hash.
func (h *RelayHandler) GetHeader(w http.ResponseWriter, r *http.Request) {
	hash, err := decodeHash(mux.Vars(r)["hash"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.relay.GetHeader(hash)
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, headerResponse{
		BlockHash:        hex.EncodeToString(rec.BlockHash[:]),
		Height:           rec.Height,
		Header:           hex.EncodeToString(rec.RawHeader[:]),
		ChainWork:        rec.ChainWork.String(),
		LastRetargetTime: rec.LastRetargetTime,
		Submitter:        rec.Submitter,
	})
}

// Tip returns the current best block.
func (h *RelayHandler) Tip(w http.ResponseWriter, _ *http.Request) {
	tip, err := h.relay.Tip()
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, tipResponse{
		BlockHash: hex.EncodeToString(tip.Hash[:]),
		Height:    tip.Height,
		ChainWork: tip.ChainWork.String(),
	})
}

// Target expands a compact difficulty encoding into the full target.
func (h *RelayHandler) Target(w http.ResponseWriter, r *http.Request) {
	bits, err := utils.ParseBits(mux.Vars(r)["bits"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	target, err := relay.NBitsToTarget(bits)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, http.StatusOK, targetResponse{
		Bits:   bits,
		Target: "0x" + target.Text(16),
	})
}

// VerifyInclusion checks a transaction inclusion proof against the ledger.
func (h *RelayHandler) VerifyInclusion(w http.ResponseWriter, r *http.Request) {
	var req verifyInclusionRequest
	if !h.decode(w, r, &req) {
		return
	}

	txid, err := decodeHash(req.TxID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("proof must be a hex string"))
		return
	}

	included, err := h.verifier.VerifyInclusion(txid, req.BlockHeight, req.TxIndex, proof, req.Confirmations)
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, verifyInclusionResponse{Included: included})
}

// ParseTransaction decodes a restricted-layout transaction into its outputs.
func (h *RelayHandler) ParseTransaction(w http.ResponseWriter, r *http.Request) {
	var req parseTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	rawTx, err := hex.DecodeString(req.Transaction)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("transaction must be a hex string"))
		return
	}

	resp, err := parseTransaction(rawTx)
	if err != nil {
		h.writeError(w, statusFromError(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func parseTransaction(rawTx []byte) (parseTransactionResponse, error) {
	numInputs, err := txparser.ExtractNumInputs(rawTx)
	if err != nil {
		return parseTransactionResponse{}, err
	}
	numOutputs, err := txparser.ExtractNumOutputs(rawTx)
	if err != nil {
		return parseTransactionResponse{}, err
	}

	resp := parseTransactionResponse{
		NumInputs:  numInputs,
		NumOutputs: numOutputs,
		Outputs:    make([]parsedOutput, 0, numOutputs),
	}
	for i := uint8(0); i < numOutputs; i++ {
		output, err := txparser.ExtractOutputAtIndex(rawTx, i)
		if err != nil {
			return parseTransactionResponse{}, err
		}

		parsed := parsedOutput{
			Index:  i,
			Value:  binary.LittleEndian.Uint64(output[:8]),
			Type:   scriptType(output[8], output[9]),
			Script: hex.EncodeToString(output[9:]),
		}
		if parsed.Type == "op_return" {
			data, err := txparser.ExtractOpReturnData(output)
			if err != nil {
				return parseTransactionResponse{}, err
			}
			parsed.Data = hex.EncodeToString(data)
		}
		resp.Outputs = append(resp.Outputs, parsed)
	}
	return resp, nil
}

func scriptType(scriptLen, firstOpcode byte) string {
	switch {
	case scriptLen == 0x22 && firstOpcode == 0x00:
		return "p2wsh"
	case scriptLen == 0x16 && firstOpcode == 0x00:
		return "p2wpkh"
	case scriptLen == 0x19 && firstOpcode == 0x76:
		return "p2pkh"
	case scriptLen == 0x17 && firstOpcode == 0xa9:
		return "p2sh"
	case firstOpcode == 0x6a:
		return "op_return"
	default:
		return "unknown"
	}
}

func decodeHash(value string) ([model.HashLength]byte, error) {
	var hash [model.HashLength]byte
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != model.HashLength {
		return hash, errors.New("hash must be a 64-character hex string")
	}
	copy(hash[:], raw)
	return hash, nil
}

func (h *RelayHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid json body"))
		return false
	}
	return true
}

func (h *RelayHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}

func (h *RelayHandler) writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Code: errorCode(err)})
}

// errorCode labels the conflict kinds clients must tell apart; a 409
// can mean a height already taken or a fork rejection.
func errorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrDuplicateBlock):
		return "duplicate_block"
	case errors.Is(err, relay.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, relay.ErrNotMainChain):
		return "not_main_chain"
	default:
		return ""
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, relay.ErrAlreadyInitialized),
		errors.Is(err, relay.ErrDuplicateBlock),
		errors.Is(err, relay.ErrNotMainChain):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrNoTip):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrInvalidHeaderLength),
		errors.Is(err, relay.ErrPrevBlockNotFound),
		errors.Is(err, relay.ErrLowDifficulty),
		errors.Is(err, relay.ErrDifficultyMismatch),
		errors.Is(err, merkle.ErrInvalidProofShape),
		errors.Is(err, merkle.ErrInvalidTxID),
		errors.Is(err, merkle.ErrInsufficientConfirmations),
		errors.Is(err, txparser.ErrUnsupportedVarInt),
		errors.Is(err, txparser.ErrUnknownScriptType),
		errors.Is(err, txparser.ErrIndexOutOfRange),
		errors.Is(err, txparser.ErrMalformedOutput),
		errors.Is(err, bytecodec.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
