package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Najnomics/fheap/internal/domain"
)

// AccessService defines the controller methods the access handler requires.
type AccessService interface {
	Grant(ctx context.Context, subject common.Address, capability domain.Capability, grantedBy common.Address) (domain.AccessGrant, error)
	Revoke(ctx context.Context, subject common.Address, capability domain.Capability) error
	Grants() []domain.AccessGrant
}

// AccessHandler serves grant management endpoints. Responses never include
// viewing keys; a grant's key travels only inside sealed blobs.
type AccessHandler struct {
	access AccessService
	logger *slog.Logger
}

// NewAccessHandler creates an AccessHandler.
func NewAccessHandler(access AccessService, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{access: access, logger: logHandler(logger, "access")}
}

// ListGrants returns all current grants.
// GET /api/access/grants
func (h *AccessHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants := h.access.Grants()
	if grants == nil {
		grants = []domain.AccessGrant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

// grantRequest is the POST /api/access/grants body.
type grantRequest struct {
	Subject    string `json:"subject"`
	Capability string `json:"capability"`
	GrantedBy  string `json:"granted_by"`
}

// CreateGrant issues a capability grant to a subject.
// POST /api/access/grants
func (h *AccessHandler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Subject) || !common.IsHexAddress(req.GrantedBy) {
		writeError(w, http.StatusBadRequest, "subject and granted_by must be hex addresses")
		return
	}
	capability := domain.Capability(req.Capability)
	if !capability.Valid() {
		writeError(w, http.StatusBadRequest, "unknown capability "+req.Capability)
		return
	}

	grant, err := h.access.Grant(r.Context(), common.HexToAddress(req.Subject), capability, common.HexToAddress(req.GrantedBy))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "grant failed",
			slog.String("subject", req.Subject),
			slog.String("capability", req.Capability),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

// RevokeGrant removes a capability grant.
// DELETE /api/access/grants/{subject}/{capability}
func (h *AccessHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	subject, ok := addressParam(r, "subject")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject address")
		return
	}
	capability := domain.Capability(r.PathValue("capability"))
	if !capability.Valid() {
		writeError(w, http.StatusBadRequest, "unknown capability")
		return
	}

	if err := h.access.Revoke(r.Context(), subject, capability); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subject":    subject.Hex(),
		"capability": string(capability),
		"status":     "revoked",
	})
}
