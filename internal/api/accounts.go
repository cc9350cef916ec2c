package api

import (
	"net/http"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/identity"
	"github.com/punchamoorthee/investledger/internal/service"
)

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newList(toAccounts(accounts)))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.PermissionLevel)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	in := service.AccountInput{Role: role}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Users != nil {
		in.Users = *req.Users
	}

	acct, err := h.svc.CreateAccount(r.Context(), identity.FromContext(r.Context()), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusCreated, toAccount(acct))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.GetAccount(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toAccount(acct))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.PermissionLevel)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if r.Method == http.MethodPut && req.Name == nil {
		h.respondError(w, r, domain.Validationf("name is required"))
		return
	}

	acct, err := h.svc.UpdateAccount(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"),
		service.AccountPatch{Name: req.Name, Users: req.Users, Role: role})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toAccount(acct))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAccount(r.Context(), identity.FromContext(r.Context()), pathID(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusNoContent, nil)
}

func (h *Handler) AccountDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.AccountDetails(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toDetails(d))
}

func (h *Handler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.ListMemberships(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newList(toMemberships(ms)))
}

func (h *Handler) AddMemberships(w http.ResponseWriter, r *http.Request) {
	var batch membershipBatch
	if err := decodeJSON(r, &batch); err != nil {
		h.respondError(w, r, err)
		return
	}
	assignments, err := batch.assignments()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ms, err := h.svc.AddMemberships(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"), assignments)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusCreated, newList(toMemberships(ms)))
}

func (h *Handler) UpdateMembership(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.PermissionLevel == "" {
		h.respondError(w, r, domain.Validationf("permission_level is required"))
		return
	}

	m, err := h.svc.UpdateMembership(r.Context(), identity.FromContext(r.Context()),
		pathID(r, "id"), pathID(r, "mid"), domain.Role(req.PermissionLevel))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toMembership(m))
}

func (h *Handler) RemoveMembership(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveMembership(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"), pathID(r, "mid"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusNoContent, nil)
}
