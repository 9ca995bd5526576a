package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/ff5m/eboardboot/eboard"
)

type runner interface {
	Run(ctx context.Context) eboard.Report
}

// server exposes the handshake to host-side macros
type server struct {
	driver  runner
	version string
	date    string

	runLock sync.Mutex // one handshake on the link at a time
	mu      sync.Mutex
	last    *eboard.Report
}

func newServer(d runner, version, date string) *server {
	return &server{driver: d, version: version, date: date}
}

func (s *server) setLast(rep eboard.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &rep
}

func (s *server) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/version", s.versionInfo).Methods("GET")
	router.HandleFunc("/status", s.getStatus).Methods("GET")
	router.HandleFunc("/handshake", s.postHandshake).Methods("POST")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(v)
}

func (s *server) versionInfo(w http.ResponseWriter, r *http.Request) {
	v := struct {
		Version   string `json:"version"`
		BuildDate string `json:"build_date"`
	}{Version: s.version, BuildDate: s.date}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("No handshake has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *server) postHandshake(w http.ResponseWriter, r *http.Request) {
	s.runLock.Lock()
	rep := s.driver.Run(r.Context())
	s.runLock.Unlock()

	s.setLast(rep)

	status := http.StatusOK
	if rep.ExitCode != eboard.ExitOK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, rep)
}
