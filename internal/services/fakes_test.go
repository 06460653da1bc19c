package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/extraction"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memObjects is an in-memory bucket.
type memObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failWrite bool
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
}

func (m *memObjects) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}

func (m *memObjects) Download(_ context.Context, object, destPath string) error {
	data, ok := m.get(object)
	if !ok {
		return fmt.Errorf("object %s not found", object)
	}
	return os.WriteFile(destPath, data, 0o600)
}

func (m *memObjects) Upload(_ context.Context, localPath, destObject string) error {
	if m.failWrite {
		return errors.New("bucket unavailable")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.put(destObject, data)
	return nil
}

func (m *memObjects) Read(_ context.Context, object string) ([]byte, string, error) {
	data, ok := m.get(object)
	if !ok {
		return nil, "", fmt.Errorf("object %s not found", object)
	}
	return data, "", nil
}

func (m *memObjects) SaveAtomically(_ context.Context, object string, content []byte) error {
	if m.failWrite {
		return errors.New("bucket unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[object]; !exists {
		m.objects[object] = content
	}
	return nil
}

type fakeWorkflow struct {
	mu   sync.Mutex
	args []models.WorkflowArgument
	err  error
}

func (w *fakeWorkflow) Trigger(_ context.Context, arg models.WorkflowArgument) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.args = append(w.args, arg)
	return fmt.Sprintf("executions/e%d", len(w.args)), nil
}

// pageExtractor returns attributes keyed by page content.
type pageExtractor struct {
	byContent map[string][]models.Attribute
	refs      []extraction.ProcessorRef
	mu        sync.Mutex
	err       error
}

func (e *pageExtractor) Extract(_ context.Context, doc extraction.Document, ref extraction.ProcessorRef) ([]models.Attribute, error) {
	e.mu.Lock()
	e.refs = append(e.refs, ref)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return models.CloneAttributes(e.byContent[string(doc.Content)]), nil
}

func seedGroup(st *store.MemoryStore) {
	st.PutProject(models.Project{ID: "p1", Name: "Osage County", Team: "t1", DateCreated: base})
	st.PutRecordGroup(models.RecordGroup{ID: "rg1", Name: "Box 12", ProjectID: "p1", ProcessorID: "proc1", DateCreated: base})
}
