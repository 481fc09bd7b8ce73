package cli

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/davarch/ci-runner/internal/infrastructure/config"
	"github.com/davarch/ci-runner/internal/infrastructure/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse archived runs and reports over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)

		r.Get("/runs", listRuns(cfg.Archive))
		r.Get("/runs/{id}/report", runReport(cfg.Archive))
		r.Get("/runs/{id}/files/*", runFiles(cfg.Archive))

		log.Info("serving archive", zap.String("addr", serveAddr), zap.String("archive", cfg.Archive))
		if err := http.ListenAndServe(serveAddr, r); err != nil {
			log.Fatal("serve", zap.Error(err))
		}
	},
}

func listRuns(archive string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := os.ReadDir(archive)
		if err != nil {
			http.Error(w, "no archive", http.StatusNotFound)
			return
		}
		runs := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				runs = append(runs, e.Name())
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(runs)))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runs)
	}
}

func runReport(archive string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path := filepath.Join(archive, filepath.Base(id), "report.json")
		b, err := os.ReadFile(path)
		if err != nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}

// runFiles serves the raw archived artifacts (HTML reports, coverage files)
// of a run. The path after /files/ is resolved inside the run directory.
func runFiles(archive string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rest := chi.URLParam(r, "*")
		dir := http.Dir(filepath.Join(archive, filepath.Base(id)))
		r.URL.Path = "/" + rest
		http.FileServer(dir).ServeHTTP(w, r)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8650", "listen address")

	rootCmd.AddCommand(serveCmd)
}
