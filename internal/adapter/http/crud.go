package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/StockForge/internal/domain/user"
)

// ---------------------------------------------------------------------------
// Generic tenant-scoped handler factories
// ---------------------------------------------------------------------------

// handleListByParam lists resources of the caller's tenant scoped by a URL parameter.
func handleListByParam[T any](param string, listFn func(ctx context.Context, tenantID, paramVal string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		items, err := listFn(r.Context(), actor.TenantID, urlParam(r, param))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleGet retrieves a single resource of the caller's tenant by URL parameter.
func handleGet[T any](param string, getFn func(ctx context.Context, tenantID, id string) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		item, err := getFn(r.Context(), actor.TenantID, urlParam(r, param))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleCreate decodes a JSON body and creates a resource on behalf of the caller.
func handleCreate[Req any, Res any](createFn func(ctx context.Context, actor user.Identity, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), actor, req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleUpdate decodes a JSON body and updates the resource named by URL parameter.
func handleUpdate[Req any, Res any](param string, updateFn func(ctx context.Context, actor user.Identity, id string, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := updateFn(r.Context(), actor, urlParam(r, param), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleDelete removes the resource named by URL parameter.
func handleDelete(param string, deleteFn func(ctx context.Context, actor user.Identity, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		if err := deleteFn(r.Context(), actor, urlParam(r, param)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
