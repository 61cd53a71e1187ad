// Package fakevdb is an in-process stand-in for the vector database REST API,
// used by tests. It implements sessions, collections, transactions with
// commit/abort, and exact cosine search over committed vectors.
package fakevdb

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/viterin/vek/vek32"

	"github.com/23skdu/vdbload/client"
)

// Hooks return an HTTP status to fail the call, or 0 to let it pass. All
// hooks except Upsert run with the server lock held and must not call back
// into the Server.
type Hooks struct {
	Login             func() int
	CreateTransaction func(collection string) int
	Upsert            func(txnID string, vectors []client.Vector) int
	Commit            func(txnID string) int
	Abort             func(txnID string) int
}

type transaction struct {
	collection string
	pending    map[uint64]client.Vector
	committed  bool
	aborted    bool
}

// Server is a fake vector database. Zero Hooks means every call succeeds.
type Server struct {
	*httptest.Server

	Username string
	Password string
	Token    string

	mu          sync.Mutex
	hooks       Hooks
	collections map[string]map[uint64]client.Vector
	indexes     map[string]client.IndexSpec
	txns        map[string]*transaction
	nextTxn     int
	commits     map[string]int
	aborts      map[string]int
	upserts     int
}

// New starts a fake server over plain HTTP.
func New() *Server {
	s := &Server{
		Username:    "admin",
		Password:    "admin",
		Token:       "test-token",
		collections: make(map[string]map[uint64]client.Vector),
		indexes:     make(map[string]client.IndexSpec),
		txns:        make(map[string]*transaction),
		commits:     make(map[string]int),
		aborts:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/create-session", s.handleLogin)
	mux.HandleFunc("POST /vectordb/collections", s.auth(s.handleCreateCollection))
	mux.HandleFunc("GET /vectordb/collections/{name}", s.auth(s.handleGetCollection))
	mux.HandleFunc("POST /vectordb/collections/{name}/indexes/dense", s.auth(s.handleCreateIndex))
	mux.HandleFunc("POST /vectordb/collections/{name}/transactions", s.auth(s.handleCreateTransaction))
	mux.HandleFunc("POST /vectordb/collections/{name}/transactions/{id}/upsert", s.auth(s.handleUpsert))
	mux.HandleFunc("POST /vectordb/collections/{name}/transactions/{id}/commit", s.auth(s.handleCommit))
	mux.HandleFunc("POST /vectordb/collections/{name}/transactions/{id}/abort", s.auth(s.handleAbort))
	mux.HandleFunc("POST /vectordb/search", s.auth(s.handleSearch))

	s.Server = httptest.NewServer(mux)
	return s
}

// SetHooks installs failure hooks.
func (s *Server) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Commits returns how many commit calls reached transaction id.
func (s *Server) Commits(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[id]
}

// Aborts returns how many abort calls reached transaction id.
func (s *Server) Aborts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborts[id]
}

// TotalCommits and TotalAborts count calls across all transactions.
func (s *Server) TotalCommits() int { return s.sum(s.commits) }
func (s *Server) TotalAborts() int  { return s.sum(s.aborts) }

func (s *Server) sum(m map[string]int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// UpsertCalls returns the number of upsert requests received.
func (s *Server) UpsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Transactions returns the ids of all opened transactions in creation order.
func (s *Server) Transactions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.txns))
	for id := range s.txns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}

// CommittedIDs returns the sorted ids of committed vectors in a collection.
func (s *Server) CommittedIDs(collection string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Index returns the dense index spec created for a collection.
func (s *Server) Index(collection string) (client.IndexSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.indexes[collection]
	return spec, ok
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) hookStatus(fn func() int) int {
	if fn == nil {
		return 0
	}
	return fn()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := gojson.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	hook := s.hooks.Login
	s.mu.Unlock()
	if code := s.hookStatus(hook); code != 0 {
		http.Error(w, "login failed", code)
		return
	}
	if req.Username != s.Username || req.Password != s.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": s.Token})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var spec client.CollectionSpec
	if err := gojson.NewDecoder(r.Body).Decode(&spec); err != nil || spec.Name == "" {
		http.Error(w, "invalid collection", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[spec.Name]; ok {
		http.Error(w, "collection already exists", http.StatusConflict)
		return
	}
	s.collections[spec.Name] = make(map[uint64]client.Vector)
	writeJSON(w, http.StatusOK, map[string]any{"id": spec.Name, "name": spec.Name, "description": spec.Description})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	_, ok := s.collections[name]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": name, "name": name})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var spec client.IndexSpec
	if err := gojson.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}
	s.indexes[name] = spec
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.hookStatus(bind(s.hooks.CreateTransaction, name)); code != 0 {
		http.Error(w, "transaction rejected", code)
		return
	}
	if _, ok := s.collections[name]; !ok {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}
	s.nextTxn++
	id := strconv.Itoa(s.nextTxn)
	s.txns[id] = &transaction{collection: name, pending: make(map[uint64]client.Vector)}
	// numeric id on the wire, as some server versions send it
	writeJSON(w, http.StatusOK, map[string]any{"transaction_id": s.nextTxn})
}

func (s *Server) openTxn(w http.ResponseWriter, r *http.Request) (string, *transaction, bool) {
	id := r.PathValue("id")
	txn, ok := s.txns[id]
	if !ok || txn.collection != r.PathValue("name") {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return id, nil, false
	}
	if txn.committed || txn.aborted {
		http.Error(w, "transaction is closed", http.StatusConflict)
		return id, nil, false
	}
	return id, txn, true
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Vectors []client.Vector `json:"vectors"`
	}
	if err := gojson.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.upserts++
	hook := s.hooks.Upsert
	s.mu.Unlock()

	if hook != nil {
		if code := hook(r.PathValue("id"), body.Vectors); code != 0 {
			http.Error(w, "upsert rejected", code)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, txn, ok := s.openTxn(w, r)
	if !ok {
		return
	}
	for _, v := range body.Vectors {
		txn.pending[v.ID] = v
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	s.commits[id]++
	if code := s.hookStatus(bind(s.hooks.Commit, id)); code != 0 {
		http.Error(w, "commit rejected", code)
		return
	}
	_, txn, ok := s.openTxn(w, r)
	if !ok {
		return
	}
	col := s.collections[txn.collection]
	for vid, v := range txn.pending {
		col[vid] = v
	}
	txn.committed = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	s.aborts[id]++
	if code := s.hookStatus(bind(s.hooks.Abort, id)); code != 0 {
		http.Error(w, "abort rejected", code)
		return
	}
	_, txn, ok := s.openTxn(w, r)
	if !ok {
		return
	}
	txn.aborted = true
	txn.pending = nil
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req client.SearchRequest
	if err := gojson.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	col, ok := s.collections[req.Collection]
	type hit struct {
		id    uint64
		score float32
	}
	hits := make([]hit, 0, len(col))
	for id, v := range col {
		if len(v.Values) != len(req.Vector) {
			continue
		}
		hits = append(hits, hit{id: id, score: vek32.CosineSimilarity(req.Vector, v.Values)})
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if req.K > 0 && len(hits) > req.K {
		hits = hits[:req.K]
	}

	knn := make([]any, 0, len(hits))
	for _, h := range hits {
		knn = append(knn, []any{h.id, map[string]float32{"CosineSimilarity": h.score}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"RespVectorKNN": map[string]any{"knn": knn}})
}

func bind(fn func(string) int, arg string) func() int {
	if fn == nil {
		return nil
	}
	return func() int { return fn(arg) }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(v)
}
