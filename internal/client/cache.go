package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"sync"
	"time"

	"task-manager/internal/models"
)

// Local storage keys.
const (
	MirrorKey  = "tm_tasks_v1"
	SessionKey = "tm_session_v1"
	// EditsKey holds changes to server tasks made while the server was unreachable.
	EditsKey = "tm_edits_v1"
)

// queuedEdit is a patch waiting to be sent to the server.
type queuedEdit struct {
	ID    int64            `json:"id"`
	Patch models.TaskPatch `json:"patch"`
}

// Remote is the part of the server API the cache needs.
type Remote interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, fields models.TaskFields) (int64, error)
	PatchTask(ctx context.Context, id int64, patch models.TaskPatch) error
}

// Cache mirrors the user's active tasks in local storage and keeps working
// when the server cannot be reached. A successful fetch replaces the mirror
// with the server's list; tasks created while offline carry a local reference
// until Sync pushes them.
type Cache struct {
	mu     sync.Mutex
	remote Remote
	store  LocalStore
	now    func() time.Time
}

// NewCache returns a cache over remote that persists to store.
func NewCache(remote Remote, store LocalStore) *Cache {
	return &Cache{remote: remote, store: store, now: time.Now}
}

// Mirror returns the locally stored tasks without contacting the server.
func (c *Cache) Mirror() ([]Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// FetchTasks returns the server's task list and stores it as the mirror. If
// the server fails for any reason the mirror is returned unmodified. An error
// is only returned when the server answered but the mirror could not be saved.
func (c *Cache) FetchTasks(ctx context.Context) ([]Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote, err := c.remote.ListTasks(ctx)
	if err != nil {
		log.Printf("Server fetch failed, using local tasks: %v", err)
		return c.load()
	}
	tasks := fromServer(remote)
	if err := c.save(tasks); err != nil {
		return tasks, err
	}
	return tasks, nil
}

// AddTask creates a task on the server and returns its reference. If the
// server fails the task is appended to the mirror under a local reference.
// Fields that fail validation are rejected without contacting the server.
func (c *Cache) AddTask(ctx context.Context, fields models.TaskFields) (TaskRef, error) {
	if err := fields.Normalize(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.remote.CreateTask(ctx, fields)
	if err == nil {
		return ServerRef(id), nil
	}
	log.Printf("Server create failed, saving task locally: %v", err)

	tasks, err := c.load()
	if err != nil {
		return "", err
	}
	task := Task{ID: c.localRef(tasks), TaskFields: fields, CreatedAt: c.now().UTC()}
	tasks = append(tasks, task)
	if err := c.save(tasks); err != nil {
		return "", err
	}
	return task.ID, nil
}

// UpdateTask applies patch to the task. Server tasks are patched on the
// server; when the server cannot take the change it is applied to the mirror
// and queued for the next Sync. A patch that sets completed to Deleted
// removes the entry from the mirror.
func (c *Cache) UpdateTask(ctx context.Context, ref TaskRef, patch models.TaskPatch) error {
	if patch.IsEmpty() {
		return models.ErrNoFields
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(ctx, ref, patch)
}

// ToggleComplete flips the task between Pending and Completed and returns the
// new status.
func (c *Cache) ToggleComplete(ctx context.Context, ref TaskRef) (models.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.load()
	if err != nil {
		return "", err
	}
	i := indexOf(tasks, ref)
	if i < 0 {
		return "", fmt.Errorf("%w: task %s", models.ErrNotFound, ref)
	}
	next := tasks[i].Completed.Toggled()
	if err := c.update(ctx, ref, models.TaskPatch{Completed: models.Some(next)}); err != nil {
		return "", err
	}
	return next, nil
}

// DeleteTask soft-deletes the task.
func (c *Cache) DeleteTask(ctx context.Context, ref TaskRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(ctx, ref, models.TaskPatch{Completed: models.Some(models.StatusDeleted)})
}

// QueuedEdits returns how many offline changes to server tasks wait for Sync.
func (c *Cache) QueuedEdits() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edits, err := c.loadEdits()
	return len(edits), err
}

// SyncResult reports what Sync did.
type SyncResult struct {
	Pushed  int    `json:"pushed"`
	Pending int    `json:"pending"`
	Edited  int    `json:"edited"`
	Queued  int    `json:"queued"`
	Online  bool   `json:"online"`
	Tasks   []Task `json:"tasks"`
}

// Sync pushes tasks created offline, then replays queued edits in order, then
// refreshes the mirror. Entries the server does not accept stay in the mirror
// under their local reference; edits the server refuses are dropped. Once the
// server is unreachable nothing more is sent and the mirror keeps its local
// entries.
func (c *Cache) Sync(ctx context.Context) (*SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.load()
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	var pending []Task
	offline := false
	for _, t := range tasks {
		if !t.ID.IsLocal() {
			continue
		}
		if offline {
			pending = append(pending, t)
			continue
		}
		if _, err := c.remote.CreateTask(ctx, t.TaskFields); err != nil {
			log.Printf("Failed to push local task %s: %v", t.ID, err)
			offline = errors.Is(err, models.ErrUnreachable)
			pending = append(pending, t)
			continue
		}
		res.Pushed++
	}
	res.Pending = len(pending)

	if offline, err = c.replayEdits(ctx, res, offline); err != nil {
		return nil, err
	}

	var remote []models.Task
	if !offline {
		remote, err = c.remote.ListTasks(ctx)
		if err != nil {
			log.Printf("Server fetch failed during sync: %v", err)
			offline = true
		}
	}

	if offline {
		// Pushed entries now live on the server; drop them so they are not sent twice.
		kept := slices.DeleteFunc(tasks, func(t Task) bool {
			return t.ID.IsLocal() && indexOf(pending, t.ID) < 0
		})
		if res.Pushed > 0 {
			if err := c.save(kept); err != nil {
				return nil, err
			}
		}
		res.Tasks = kept
		return res, nil
	}

	merged := append(fromServer(remote), pending...)
	if err := c.save(merged); err != nil {
		return nil, err
	}
	res.Online = true
	res.Tasks = merged
	return res, nil
}

// update must be called with c.mu held.
func (c *Cache) update(ctx context.Context, ref TaskRef, patch models.TaskPatch) error {
	id, ok := ref.ServerID()
	if !ok {
		return c.applyLocal(ref, patch)
	}

	edits, err := c.loadEdits()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(edits, func(e queuedEdit) bool { return e.ID == id }) {
		// Edits of one task reach the server in the order they were made.
		return c.queue(ref, id, patch, edits)
	}

	err = c.remote.PatchTask(ctx, id, patch)
	switch {
	case err == nil:
		if err := c.applyLocal(ref, patch); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return nil
	case rejected(err):
		return err
	}
	log.Printf("Server update failed, updating local task %s: %v", ref, err)
	return c.queue(ref, id, patch, edits)
}

func (c *Cache) queue(ref TaskRef, id int64, patch models.TaskPatch, edits []queuedEdit) error {
	if err := c.applyLocal(ref, patch); err != nil {
		return err
	}
	return c.saveEdits(append(edits, queuedEdit{ID: id, Patch: patch}))
}

// replayEdits sends queued edits in order. An edit that fails without a
// refusal stays queued along with every edit after it. It returns whether the
// server is unreachable.
func (c *Cache) replayEdits(ctx context.Context, res *SyncResult, offline bool) (bool, error) {
	edits, err := c.loadEdits()
	if err != nil || len(edits) == 0 {
		return offline, err
	}

	sent := 0
	if !offline {
		for _, e := range edits {
			err := c.remote.PatchTask(ctx, e.ID, e.Patch)
			if err != nil && !rejected(err) {
				log.Printf("Failed to send queued edit of task %d: %v", e.ID, err)
				offline = errors.Is(err, models.ErrUnreachable)
				break
			}
			if err != nil {
				log.Printf("Server refused queued edit of task %d: %v", e.ID, err)
			} else {
				res.Edited++
			}
			sent++
		}
	}

	rest := edits[sent:]
	res.Queued = len(rest)
	if sent == 0 {
		return offline, nil
	}
	return offline, c.saveEdits(rest)
}

func (c *Cache) applyLocal(ref TaskRef, patch models.TaskPatch) error {
	tasks, err := c.load()
	if err != nil {
		return err
	}
	i := indexOf(tasks, ref)
	if i < 0 {
		return fmt.Errorf("%w: task %s", models.ErrNotFound, ref)
	}
	patch.Apply(&tasks[i].TaskFields)
	if tasks[i].Completed == models.StatusDeleted {
		tasks = slices.Delete(tasks, i, i+1)
	}
	return c.save(tasks)
}

// rejected reports whether the server answered and refused the change, as
// opposed to failing to answer.
func rejected(err error) bool {
	return errors.Is(err, models.ErrInvalid) ||
		errors.Is(err, models.ErrNoFields) ||
		errors.Is(err, models.ErrNotFound)
}

func (c *Cache) localRef(tasks []Task) TaskRef {
	ms := c.now().UnixMilli()
	for {
		ref := TaskRef(LocalRefPrefix + strconv.FormatInt(ms, 10))
		if indexOf(tasks, ref) < 0 {
			return ref
		}
		ms++
	}
}

func indexOf(tasks []Task, ref TaskRef) int {
	return slices.IndexFunc(tasks, func(t Task) bool { return t.ID == ref })
}

// load reads the mirror. A missing or unreadable mirror is empty.
func (c *Cache) load() ([]Task, error) {
	data, err := c.store.Get(MirrorKey)
	if errors.Is(err, ErrNoValue) {
		return []Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local tasks: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		log.Printf("Failed to parse local tasks, starting empty: %v", err)
		return []Task{}, nil
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

func (c *Cache) save(tasks []Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode local tasks: %w", err)
	}
	if err := c.store.Set(MirrorKey, data); err != nil {
		return fmt.Errorf("save local tasks: %w", err)
	}
	return nil
}

func (c *Cache) loadEdits() ([]queuedEdit, error) {
	data, err := c.store.Get(EditsKey)
	if errors.Is(err, ErrNoValue) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queued edits: %w", err)
	}
	var edits []queuedEdit
	if err := json.Unmarshal(data, &edits); err != nil {
		log.Printf("Failed to parse queued edits, dropping them: %v", err)
		return nil, nil
	}
	return edits, nil
}

func (c *Cache) saveEdits(edits []queuedEdit) error {
	if len(edits) == 0 {
		return c.store.Remove(EditsKey)
	}
	data, err := json.Marshal(edits)
	if err != nil {
		return fmt.Errorf("encode queued edits: %w", err)
	}
	if err := c.store.Set(EditsKey, data); err != nil {
		return fmt.Errorf("save queued edits: %w", err)
	}
	return nil
}

// RestoreSession loads a saved session token into api.
func RestoreSession(api *API, store LocalStore) error {
	data, err := store.Get(SessionKey)
	if errors.Is(err, ErrNoValue) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	api.SetSessionToken(string(data))
	return nil
}

// SaveSession persists api's current session token, or removes the saved one
// when there is none.
func SaveSession(api *API, store LocalStore) error {
	token := api.SessionToken()
	if token == "" {
		return store.Remove(SessionKey)
	}
	return store.Set(SessionKey, []byte(token))
}
