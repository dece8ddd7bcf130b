package editor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/layers"
)

// TouchInterval throttles activity writes to the workspace registry.
const TouchInterval = time.Second

type (
	// Factory builds a fresh workspace for an id.
	Factory func(id string) *Workspace

	// Summary is the listing entry of a workspace.
	Summary struct {
		ID         string `json:"id"`
		LastActive int64  `json:"lastActive"`
		Clients    int    `json:"clients"`
		Layers     int    `json:"layers"`
	}

	entry struct {
		ws      *Workspace
		clients map[string]struct{}

		touchMu   sync.Mutex
		lastTouch time.Time
	}

	// Registry owns the live workspaces of the server.
	Registry struct {
		mu      sync.Mutex
		entries map[string]*entry

		registry core.WorkspaceRegistry
		factory  Factory
	}
)

// NewRegistry returns an empty registry. reg may be nil, in which case
// activity is not persisted.
func NewRegistry(reg core.WorkspaceRegistry, factory Factory) *Registry {
	if factory == nil {
		factory = func(id string) *Workspace { return New(id) }
	}
	return &Registry{
		entries:  make(map[string]*entry),
		registry: reg,
		factory:  factory,
	}
}

// Create starts a new workspace with a generated id.
func (r *Registry) Create() *Workspace {
	id := ulid.Make().String()
	r.mu.Lock()
	e := r.addLocked(id)
	r.mu.Unlock()

	logrus.WithField("workspace_id", id).Info("Workspace created successfully")
	r.touch(e)
	return e.ws
}

func (r *Registry) addLocked(id string) *entry {
	e := &entry{ws: r.factory(id), clients: make(map[string]struct{})}
	e.ws.Observe(layers.ObserverFunc(func(layers.Change) { r.touch(e) }))
	r.entries[id] = e
	return e
}

func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, core.Errorf(core.CodeNotFound, "workspace with id %s not found", id)
	}
	return e.ws, nil
}

// Join attaches a client to a live workspace. Workspaces are only made by
// Create, so an unknown id is NOT_FOUND.
func (r *Registry) Join(id, clientID string, mobile bool) (*Workspace, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		e.clients[clientID] = struct{}{}
	}
	r.mu.Unlock()

	if !ok {
		return nil, core.Errorf(core.CodeNotFound, "workspace with id %s not found", id)
	}
	e.ws.ClientJoined(clientID, mobile)
	logrus.WithFields(logrus.Fields{
		"workspace_id": id,
		"client_id":    clientID,
	}).Info("Client joined workspace")
	return e.ws, nil
}

// Leave detaches a client. Workspaces stay alive with no clients.
func (r *Registry) Leave(id, clientID string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(e.clients, clientID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	e.ws.ClientLeft(clientID)
	logrus.WithFields(logrus.Fields{
		"workspace_id": id,
		"client_id":    clientID,
	}).Info("Client left workspace")
}

// Delete drops a workspace and its registry record.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return core.Errorf(core.CodeNotFound, "workspace with id %s not found", id)
	}
	e.ws.Close()

	if r.registry != nil {
		if err := r.registry.DeleteWorkspace(ctx, id); err != nil && !core.IsCode(err, core.CodeNotFound) {
			return err
		}
	}
	logrus.WithField("workspace_id", id).Info("Workspace deleted successfully")
	return nil
}

// List returns the live workspaces, most recently active first.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	type live struct {
		ws      *Workspace
		clients int
	}
	r.mu.Lock()
	entries := make(map[string]live, len(r.entries))
	for id, e := range r.entries {
		entries[id] = live{ws: e.ws, clients: len(e.clients)}
	}
	r.mu.Unlock()

	lastActive := make(map[string]int64)
	if r.registry != nil {
		records, err := r.registry.ListWorkspaces(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			lastActive[rec.ID] = rec.LastActive
		}
	}

	out := make([]Summary, 0, len(entries))
	for id, l := range entries {
		out = append(out, Summary{
			ID:         id,
			LastActive: lastActive[id],
			Clients:    l.clients,
			Layers:     l.ws.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive != out[j].LastActive {
			return out[i].LastActive > out[j].LastActive
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close stops the timers of every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.ws.Close()
	}
}

func (r *Registry) touch(e *entry) {
	if r.registry == nil {
		return
	}
	e.touchMu.Lock()
	now := time.Now()
	if now.Sub(e.lastTouch) < TouchInterval {
		e.touchMu.Unlock()
		return
	}
	e.lastTouch = now
	e.touchMu.Unlock()

	id := e.ws.ID()
	go func() {
		if err := r.registry.TouchWorkspace(context.Background(), id); err != nil {
			logrus.WithField("workspace_id", id).WithError(err).Warn("Failed to record workspace activity")
		}
	}()
}
