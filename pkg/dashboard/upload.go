package dashboard

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	sealbox "github.com/sealbox/sealbox"
)

// UploadFlow represents the state of one dashboard upload as it moves
// through the encrypt pipeline.
type UploadFlow struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	StartedAt   int64             `json:"startedAt"`
	CompletedAt int64             `json:"completedAt,omitempty"`
	Stages      []UploadFlowStage `json:"stages"`
	FileID      string            `json:"fileId,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// UploadFlowStage is a single stage in the upload pipeline.
type UploadFlowStage struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	StartedAt   int64  `json:"startedAt,omitempty"`
	CompletedAt int64  `json:"completedAt,omitempty"`
}

// UploadFlowTracker manages upload flow state. Uses sync.Map since each
// upload is independent.
type UploadFlowTracker struct {
	mu    sync.Mutex
	flows sync.Map // map[string]*UploadFlow
}

// NewUploadFlowTracker creates a new UploadFlowTracker.
func NewUploadFlowTracker() *UploadFlowTracker {
	return &UploadFlowTracker{}
}

func generateFlowID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Create registers a new upload flow and returns it.
func (t *UploadFlowTracker) Create() *UploadFlow {
	flow := &UploadFlow{
		ID:        generateFlowID(),
		Status:    "started",
		StartedAt: time.Now().UnixMilli(),
		Stages: []UploadFlowStage{
			{Name: "encrypting", Status: "pending"},
			{Name: "persisting", Status: "pending"},
			{Name: "complete", Status: "pending"},
		},
	}
	t.flows.Store(flow.ID, flow)
	return flow
}

// Get returns a snapshot of an upload flow. The tracked flow keeps being
// mutated by the upload pipeline, so callers get a copy taken under the lock,
// never the live struct.
func (t *UploadFlowTracker) Get(id string) (UploadFlow, bool) {
	v, ok := t.flows.Load(id)
	if !ok {
		return UploadFlow{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	flow := *v.(*UploadFlow)
	flow.Stages = append([]UploadFlowStage(nil), flow.Stages...)
	return flow, true
}

// UpdateStatus advances the flow to the named stage; earlier stages are
// marked complete.
func (t *UploadFlowTracker) UpdateStatus(id, status string) {
	v, ok := t.flows.Load(id)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	flow := v.(*UploadFlow)
	flow.Status = status
	now := time.Now().UnixMilli()

	reached := false
	for i := range flow.Stages {
		switch {
		case flow.Stages[i].Name == status:
			flow.Stages[i].Status = "in_progress"
			flow.Stages[i].StartedAt = now
			reached = true
		case !reached:
			flow.Stages[i].Status = "complete"
			if flow.Stages[i].CompletedAt == 0 {
				flow.Stages[i].CompletedAt = now
			}
		}
	}

	if status == "complete" {
		flow.CompletedAt = now
		for i := range flow.Stages {
			flow.Stages[i].Status = "complete"
			if flow.Stages[i].CompletedAt == 0 {
				flow.Stages[i].CompletedAt = now
			}
		}
	}
}

// Fail marks the flow as failed with the given message.
func (t *UploadFlowTracker) Fail(id, msg string) {
	v, ok := t.flows.Load(id)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	flow := v.(*UploadFlow)
	flow.Status = "failed"
	flow.Error = msg
	flow.CompletedAt = time.Now().UnixMilli()
}

// SetFileID records the resulting artifact id on the flow.
func (t *UploadFlowTracker) SetFileID(id, fileID string) {
	v, ok := t.flows.Load(id)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	v.(*UploadFlow).FileID = fileID
}

// handleUpload encrypts an uploaded file through the normal pipeline.
// POST /api/upload
func (d *Dashboard) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !d.config.AllowUpload {
		http.Error(w, "uploads are disabled", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	secret := r.FormValue("key")
	if secret == "" {
		secret = d.config.MasterSecret
	}
	if secret == "" {
		http.Error(w, "no encryption key available", http.StatusBadRequest)
		return
	}

	flow := d.uploadTracker.Create()
	d.uploadTracker.UpdateStatus(flow.ID, "encrypting")

	env, err := d.config.Box.EncryptFile(r.Context(), file, secret, sealbox.StoreOptions{
		OriginalName: fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Compress:     r.FormValue("compress") == "true",
	})
	if err != nil {
		d.uploadTracker.Fail(flow.ID, err.Error())
		d.config.Logger.Error("dashboard upload failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	d.uploadTracker.UpdateStatus(flow.ID, "persisting")
	d.uploadTracker.SetFileID(flow.ID, env.ID)
	d.uploadTracker.UpdateStatus(flow.ID, "complete")

	d.writeJSON(w, http.StatusCreated, map[string]string{
		"flowId": flow.ID,
		"fileId": env.ID,
	})
}

// handleUploadStatus reports the progress of one upload flow.
// GET /api/upload/{flowId}
func (d *Dashboard) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	flow, ok := d.uploadTracker.Get(r.PathValue("flowId"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	d.writeJSON(w, http.StatusOK, flow)
}
