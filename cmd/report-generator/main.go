package main

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/activityreport/internal/gcp"
	"github.com/Lllllllleong/activityreport/internal/intake"
	"github.com/Lllllllleong/activityreport/internal/services"
)

var (
	handlerInstance *reportHandler
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleGenerateReport", handleGenerateReport)
}

// main serves the function locally. On Cloud Functions the framework's own
// entry point is used instead.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.StartHostPort("", port); err != nil {
		slog.Error("Function server stopped", "error", err)
		os.Exit(1)
	}
}

func handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		var generator *services.GeneratorFunction
		generator, initErr = services.NewGenerator(context.Background())
		if initErr == nil {
			handlerInstance = &reportHandler{generator: generator, intake: intake.ConfigFromEnv()}
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handlerInstance.ServeHTTP(w, r)
}

// reportHandler answers a form submission with the generated PDF.
type reportHandler struct {
	generator *services.GeneratorFunction
	intake    intake.Config
}

func (h *reportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, intake.MaxUploadBytes)
	rec, err := intake.Parse(r, h.intake)
	if err != nil {
		slog.Warn("Could not parse form submission", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request: could not parse form", http.StatusBadRequest)
		return
	}

	res, err := h.generator.Process(r.Context(), rec)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		// The specific error is already logged inside the Process method.
		http.Error(w, "Error generating report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PDF)))
	if res.ArchiveURI != "" {
		w.Header().Set("X-Report-Archive", res.ArchiveURI)
	}
	if _, err := w.Write(res.PDF); err != nil {
		slog.Error("Failed to write response", "reportId", res.ReportID, "error", err)
	}
}
