package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/activityreport/internal/gcp"
	"github.com/Lllllllleong/activityreport/internal/models"
	"github.com/Lllllllleong/activityreport/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	recordRendererInstance *services.RecordRendererFunction
	once                   sync.Once
	initErr                error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("RenderQueuedRecord", renderQueuedRecord)
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

// renderQueuedRecord is the Cloud Function entry point for storage finalize events.
func renderQueuedRecord(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		recordRendererInstance, initErr = services.NewRecordRenderer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	gcsEvent, err := decodeGCSEvent(e)
	if err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return err
	}

	// The error is already logged with context within the Process method.
	// Returning it marks the function invocation as failed.
	return recordRendererInstance.Process(ctx, gcsEvent)
}

func decodeGCSEvent(e cloudevents.Event) (models.GCSEvent, error) {
	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		return gcsEvent, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		return gcsEvent, fmt.Errorf("event %s has no bucket or object name", e.ID())
	}
	return gcsEvent, nil
}
