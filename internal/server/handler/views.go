package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
)

// ViewService defines the sealed-view methods the handler requires.
type ViewService interface {
	SealedCaptured(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error)
	SealedFees(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error)
	SealedRewards(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error)
	SealedThreshold(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error)
	SealedMEVEstimate(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error)
	ParticipantReward(ctx context.Context, market domain.MarketKey, lpLiquidity, totalLiquidity fhe.CipherUint) (fhe.CipherUint, error)
}

// ViewAccess gates and keys participant reward sealing.
type ViewAccess interface {
	HasCapability(subject common.Address, capability domain.Capability) bool
	ViewingKey(subject common.Address, capability domain.Capability) ([]byte, error)
}

// Sealer re-keys a ciphertext to a viewer.
type Sealer interface {
	Seal(c fhe.CipherUint, viewingKey []byte) (fhe.SealedBlob, error)
}

// ViewHandler serves confidential state sealed to authorized viewers.
// Values never appear in plaintext in any response.
type ViewHandler struct {
	views   ViewService
	access  ViewAccess
	sealer  Sealer
	encrypt Encryptor
	logger  *slog.Logger
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(views ViewService, access ViewAccess, sealer Sealer, encrypt Encryptor, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{
		views:   views,
		access:  access,
		sealer:  sealer,
		encrypt: encrypt,
		logger:  logHandler(logger, "views"),
	}
}

// SealedView returns one sealed field of a market's confidential state.
// GET /api/markets/{market}/sealed/{view}?subject=0x...
func (h *ViewHandler) SealedView(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}
	subject, ok := addressQuery(r, "subject")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid subject address")
		return
	}

	var blob fhe.SealedBlob
	var err error
	view := r.PathValue("view")
	switch view {
	case "captured":
		blob, err = h.views.SealedCaptured(market, subject)
	case "fees":
		blob, err = h.views.SealedFees(market, subject)
	case "rewards":
		blob, err = h.views.SealedRewards(market, subject)
	case "threshold":
		blob, err = h.views.SealedThreshold(market, subject)
	case "mev":
		blob, err = h.views.SealedMEVEstimate(market, subject)
	default:
		writeError(w, http.StatusNotFound, "unknown view "+view)
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "sealed view refused",
			slog.String("market", market.String()),
			slog.String("view", view),
			slog.String("subject", subject.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market": market.String(),
		"view":   view,
		"sealed": blob,
	})
}

// ParticipantReward computes one liquidity provider's reward slice and
// returns it sealed to the participant's reward viewing key.
// GET /api/markets/{market}/lp-rewards/{participant}?lp_liquidity=..&total_liquidity=..
func (h *ViewHandler) ParticipantReward(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}
	participant, ok := addressParam(r, "participant")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	lpLiquidity, err1 := strconv.ParseUint(r.URL.Query().Get("lp_liquidity"), 10, 64)
	totalLiquidity, err2 := strconv.ParseUint(r.URL.Query().Get("total_liquidity"), 10, 64)
	if err1 != nil || err2 != nil || totalLiquidity == 0 || lpLiquidity > totalLiquidity {
		writeError(w, http.StatusBadRequest, "lp_liquidity and total_liquidity must be valid with lp <= total > 0")
		return
	}

	if !h.access.HasCapability(participant, domain.CapabilityRewardView) {
		writeError(w, http.StatusForbidden, "participant lacks reward view capability")
		return
	}
	vk, err := h.access.ViewingKey(participant, domain.CapabilityRewardView)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	lp, err := h.encrypt.EncryptUint(lpLiquidity, fhe.Wide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt liquidity failed")
		return
	}
	total, err := h.encrypt.EncryptUint(totalLiquidity, fhe.Wide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt liquidity failed")
		return
	}

	reward, err := h.views.ParticipantReward(r.Context(), market, lp, total)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	blob, err := h.sealer.Seal(reward, vk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "seal reward failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":      market.String(),
		"participant": participant.Hex(),
		"sealed":      blob,
	})
}
