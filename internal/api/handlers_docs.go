package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/pathstore"
	"github.com/dgallion1/annodoc/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// handleListDocuments lists all documents for a user.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	prefix := "memory/users/" + userID + "/documents"
	children, err := s.orchestrator.PathstoreClient().ListChildren(r.Context(), prefix, 1000)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Only document meta nodes; skip entities and the hash index.
	docs := []map[string]any{}
	for _, child := range children {
		segs := splitKey(child.Key)
		if len(segs) < 2 || segs[len(segs)-1] != "meta" || strings.Contains(child.Key, "by_hash") {
			continue
		}
		docs = append(docs, map[string]any{
			"doc_id": segs[len(segs)-2],
			"key":    child.Key,
			"value":  child.Value,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleListEntities returns the stored records of one document in document
// order.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	if !extract.ValidPathSegment(docID) {
		jsonError(w, "invalid doc_id", http.StatusBadRequest)
		return
	}

	prefix := pipeline.DocPrefix(userID, docID) + "/entities"
	children, err := s.orchestrator.PathstoreClient().ListChildren(r.Context(), prefix, 10000)
	if err != nil {
		jsonError(w, "failed to list entities: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(children) == 0 {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	entities := make([]any, 0, len(children))
	for _, c := range children {
		entities = append(entities, c.Value)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":   docID,
		"entities": entities,
	})
}

// handleDeleteDocument deletes a document, its entities and its hash index
// entry.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	if !extract.ValidPathSegment(docID) {
		jsonError(w, "invalid doc_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ps := s.orchestrator.PathstoreClient()
	docPrefix := pipeline.DocPrefix(userID, docID)

	hashDeleted := deleteHashIndex(ctx, ps, userID, docID, docPrefix)

	entities, err := ps.ListChildren(ctx, docPrefix+"/entities", 10000)
	if err != nil {
		jsonError(w, "failed to read entities: "+err.Error(), http.StatusInternalServerError)
		return
	}

	docDeleted := false
	if err := ps.DeleteNode(ctx, docPrefix, true); err == nil {
		docDeleted = true
	} else {
		s.log.Warn("document delete failed", "doc_id", docID, "error", err)
	}
	if !docDeleted && len(entities) == 0 && !hashDeleted {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":             docID,
		"entities_deleted":   len(entities),
		"document_deleted":   docDeleted,
		"hash_index_deleted": hashDeleted,
	})
}

func deleteHashIndex(ctx context.Context, ps *pathstore.Client, userID, docID, docPrefix string) bool {
	// Read the meta to get the content hash.
	meta, err := ps.GetNode(ctx, docPrefix+"/meta")
	if err != nil || meta == nil {
		return false
	}
	metaMap, ok := meta.Value.(map[string]any)
	if !ok {
		return false
	}
	hash, _ := metaMap["content_hash"].(string)
	if hash == "" {
		return false
	}
	return ps.DeleteNode(ctx, pipeline.HashIndexPrefix(userID, hash)+"/"+docID, false) == nil
}

// splitKey splits a key in slash or dotted form into segments.
func splitKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool { return r == '.' || r == '/' })
}
