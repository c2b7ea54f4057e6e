package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type userEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName *string `json:"displayName,omitempty"`
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "mock-users.json", "path to mock data file (JSON array of users)")
		apiKey  = flag.String("api-key", "", "require this X-API-Key when set")
		verbose = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger := logrus.New()

	file, err := os.ReadFile(*data)
	if err != nil {
		logger.Fatalf("read mock data: %v", err)
	}

	var entries []userEntry
	if err := json.Unmarshal(file, &entries); err != nil {
		logger.Fatalf("parse mock data: %v", err)
	}
	users := make(map[string]userEntry, len(entries))
	for _, entry := range entries {
		users[strings.ToLower(entry.ID)] = entry
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		if *verbose {
			logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Info("request")
		}
		if *apiKey != "" && r.Header.Get("X-API-Key") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		id := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/users/"))
		entry, ok := users[id]
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	logger.WithField("entries", len(users)).Infof("mock user directory listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
